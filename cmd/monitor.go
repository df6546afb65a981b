package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/webitel/realtime-hub/internal/domain/model"
)

// statsView mirrors the JSON served at {socket.path}/stats.
type statsView struct {
	Running bool            `json:"running"`
	Host    string          `json:"host"`
	Hub     *model.HubStats `json:"hub"`
}

func monitorCmd() *cli.Command {
	return &cli.Command{
		Name:    "monitor",
		Aliases: []string{"m"},
		Usage:   "Watch a running hub in the terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Base URL of the hub",
				Value: "http://127.0.0.1:3000",
			},
			&cli.StringFlag{
				Name:  "path",
				Usage: "Socket path of the hub",
				Value: "/api/socket",
			},
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Refresh interval",
				Value: 2 * time.Second,
			},
		},
		Action: func(c *cli.Context) error {
			return runMonitor(c.Context, c.String("addr")+c.String("path")+"/stats", c.Duration("interval"))
		},
	}
}

func runMonitor(ctx context.Context, url string, interval time.Duration) error {
	if err := ui.Init(); err != nil {
		return fmt.Errorf("MONITOR_INIT_FAILED: %w", err)
	}
	defer ui.Close()

	header := widgets.NewParagraph()
	header.Title = "realtime-hub"
	header.Text = "connecting to " + url

	table := widgets.NewTable()
	table.Title = "hub"
	table.RowSeparator = false

	missed := widgets.NewTable()
	missed.Title = "missed by room (q to quit)"
	missed.RowSeparator = false

	layout := func() {
		w, h := ui.TerminalDimensions()
		header.SetRect(0, 0, w, 3)
		table.SetRect(0, 3, w/2, h)
		missed.SetRect(w/2, 3, w, h)
	}
	layout()

	g, ctx := errgroup.WithContext(ctx)
	updates := make(chan statsView)

	// [POLLER]
	g.Go(func() error {
		client := &http.Client{Timeout: interval}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			view, err := fetchStats(ctx, client, url)
			if err != nil {
				view = statsView{Host: err.Error()}
			}
			select {
			case updates <- view:
			case <-ctx.Done():
				return nil
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return nil
			}
		}
	})

	// [RENDERER]
	g.Go(func() error {
		events := ui.PollEvents()
		for {
			select {
			case e := <-events:
				switch e.ID {
				case "q", "<C-c>":
					return context.Canceled
				case "<Resize>":
					layout()
					ui.Render(header, table, missed)
				}
			case view := <-updates:
				renderStats(view, header, table, missed)
				ui.Render(header, table, missed)
			case <-ctx.Done():
				return nil
			}
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func fetchStats(ctx context.Context, client *http.Client, url string) (statsView, error) {
	var view statsView

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return view, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return view, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return view, fmt.Errorf("stats: unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return view, fmt.Errorf("stats: decode: %w", err)
	}
	return view, nil
}

func renderStats(view statsView, header *widgets.Paragraph, table, missed *widgets.Table) {
	if !view.Running || view.Hub == nil {
		header.Text = "not running " + view.Host
		table.Rows = [][]string{{"state", "idle"}}
		missed.Rows = [][]string{{"room", "missed"}}
		return
	}

	st := view.Hub
	header.Text = fmt.Sprintf("host %s  up %s", view.Host, st.Uptime.Truncate(time.Second))

	rows := [][]string{
		{"connections", strconv.Itoa(st.Connections)},
		{"rooms", strconv.Itoa(st.Rooms)},
		{"delivered", strconv.FormatUint(st.Delivered, 10)},
		{"dropped", strconv.FormatUint(st.Dropped, 10)},
	}
	for _, t := range sortedKeys(st.ByTransport) {
		rows = append(rows, []string{"transport " + t, strconv.Itoa(st.ByTransport[t])})
	}
	table.Rows = rows

	missedRows := [][]string{{"room", "missed"}}
	for _, room := range sortedKeys(st.MissedByRoom) {
		missedRows = append(missedRows, []string{room, strconv.Itoa(st.MissedByRoom[room])})
	}
	missed.Rows = missedRows
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
