package main

import (
	"fmt"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/brensch/snekgym/inference"
	"github.com/brensch/snekgym/vecenv"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Width(18)
	valueStyle = lipgloss.NewStyle().Bold(true)
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	hintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

const recentEpisodes = 10

type tickMsg time.Time

type finishedMsg struct{}

type dashboard struct {
	pool     *vecenv.Pool
	net      *inference.ClientPool
	updates  <-chan episodeUpdate
	finished <-chan struct{}

	start  time.Time
	stats  vecenv.Stats
	rt     inference.RuntimeStats
	recent []episodeUpdate
	wins   map[string]int
}

func newDashboard(pool *vecenv.Pool, net *inference.ClientPool, updates <-chan episodeUpdate, finished <-chan struct{}) dashboard {
	return dashboard{
		pool:     pool,
		net:      net,
		updates:  updates,
		finished: finished,
		start:    time.Now(),
		wins:     map[string]int{},
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitForEpisode(updates <-chan episodeUpdate) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-updates
		if !ok {
			return nil
		}
		return u
	}
}

func waitForFinish(finished <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-finished
		return finishedMsg{}
	}
}

func (m dashboard) Init() tea.Cmd {
	return tea.Batch(tickCmd(), waitForEpisode(m.updates), waitForFinish(m.finished))
}

func (m dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	case tickMsg:
		m.stats = m.pool.Stats()
		if m.net != nil {
			m.rt = m.net.Stats()
		}
		return m, tickCmd()
	case episodeUpdate:
		if msg.Winner != "" {
			m.wins[msg.Winner]++
		}
		m.recent = append([]episodeUpdate{msg}, m.recent...)
		if len(m.recent) > recentEpisodes {
			m.recent = m.recent[:recentEpisodes]
		}
		return m, waitForEpisode(m.updates)
	case finishedMsg:
		return m, tea.Quit
	}
	return m, nil
}

func (m dashboard) View() string {
	elapsed := time.Since(m.start)
	var b strings.Builder
	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label) + valueStyle.Render(value) + "\n")
	}

	b.WriteString(titleStyle.Render("snekgym rollout") + "\n\n")
	row("Elapsed", elapsed.Round(time.Second).String())
	row("Pool steps", fmt.Sprint(m.stats.Steps))
	row("Env steps", fmt.Sprint(m.stats.EnvSteps))
	row("Env steps/sec", fmt.Sprintf("%.0f", m.stats.StepsPerSecond()))
	row("Avg step", m.stats.AvgStepLatency.String())
	row("Episodes", fmt.Sprint(m.stats.Episodes))
	if secs := elapsed.Seconds(); secs >= 1 {
		row("Episodes/sec", fmt.Sprintf("%.2f", float64(m.stats.Episodes)/secs))
	}
	if m.stats.Failures > 0 {
		row("Failed steps", fmt.Sprint(m.stats.Failures))
	}
	if m.net != nil {
		row("ONNX batch avg", fmt.Sprintf("%.1f (last %d, queue %d)", m.rt.AvgBatchSize, m.rt.LastBatchSize, m.rt.QueueLen))
		row("ONNX run avg", fmt.Sprintf("%.2fms", m.rt.AvgRunMs))
	}
	if len(m.wins) > 0 {
		parts := make([]string, 0, len(m.wins))
		for id, n := range m.wins {
			parts = append(parts, fmt.Sprintf("%s=%d", id, n))
		}
		slices.Sort(parts)
		row("Wins", strings.Join(parts, " "))
	}

	var recent strings.Builder
	recent.WriteString("Recent episodes\n")
	for _, u := range m.recent {
		winner := u.Winner
		if winner == "" {
			winner = "-"
		}
		fmt.Fprintf(&recent, "slot %3d  ep %4d  turns %4d  winner %-4s  return %+.2f\n", u.Slot, u.Episode, u.Turns, winner, u.Return)
	}

	return b.String() + "\n" + boxStyle.Render(strings.TrimRight(recent.String(), "\n")) + "\n" + hintStyle.Render("q to stop") + "\n"
}
