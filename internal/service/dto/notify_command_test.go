package dto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webitel/realtime-hub/internal/domain/model"
)

func TestNotifyCommand_Decode(t *testing.T) {
	var cmd NotifyCommand
	err := json.Unmarshal([]byte(`{"role":"customer","target_id":"7","data":{"message":"ready","eta":5}}`), &cmd)
	require.NoError(t, err)

	assert.Equal(t, model.RoleCustomer, cmd.Role)
	assert.Equal(t, "7", cmd.TargetID)
	require.NotNil(t, cmd.Data)
	assert.Equal(t, "ready", cmd.Data.Message)
	assert.Equal(t, float64(5), cmd.Data.Extra["eta"])
	assert.NoError(t, cmd.Validate())
	assert.False(t, cmd.IsBroadcast())
}

func TestNotifyCommand_Validate(t *testing.T) {
	assert.NoError(t, (&NotifyCommand{}).Validate())
	assert.Error(t, (&NotifyCommand{TargetID: "1"}).Validate())
	assert.Error(t, (&NotifyCommand{Role: "chef", TargetID: "1"}).Validate())
	assert.Error(t, (&NotifyCommand{Role: model.RoleRider}).Validate())
}
