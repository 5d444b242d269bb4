package ui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ftahirops/xgov/config"
	"github.com/ftahirops/xgov/engine"
	"github.com/ftahirops/xgov/model"
	"github.com/ftahirops/xgov/util"
)

// Engine is the part of the orchestrator the console drives.
type Engine interface {
	Processes(key model.SortKey, term string) []model.ProcessSnapshot
	Health() map[int]model.HealthFlags
	EffectHistory(n int) []model.EffectRecord
	Ledger(pid int) []model.ActionRecord
	Suggestions(ctx context.Context) []model.Suggestion
	Rules() []model.Rule
	Thresholds() model.Thresholds
	Whitelist() []string
	GovernorEnabled() bool
	FollowForeground() bool
	ForegroundPID() int
	SortKey() model.SortKey
	Profile() string
	Events() (<-chan model.Event, func())
	RecentEvents() []model.Event

	ApplyAction(ctx context.Context, pids []int, spec model.ActionSpec) []model.Outcome
	RevertPID(ctx context.Context, pid int) ([]model.ActionKind, error)
	ToggleGovernor(on bool)
	SetFollowForeground(on bool)
	SetSort(key model.SortKey)
	SetWhitelist(names []string)
	ApplyProfile(ctx context.Context, name string) error
	ApplySuggestions(ctx context.Context) []model.Outcome
}

// Options configures the console.
type Options struct {
	Interval time.Duration
	// ConfigPath receives whitelist edits made from the console. Empty
	// keeps them in memory only.
	ConfigPath string
}

// Page identifies the current screen.
type Page int

const (
	PageProcesses Page = iota
	PageEffects
	PageEvents
	PageRules
	pageCount
)

var pageNames = []string{"Processes", "Effects", "Events", "Rules"}

const (
	trailLen  = 120
	keepEvent = 200
)

type tickMsg time.Time

type eventMsg model.Event

type outcomeMsg struct {
	label    string
	outcomes []model.Outcome
}

type statusMsg struct {
	text string
	err  error
}

// Model is the bubbletea model.
type Model struct {
	eng      Engine
	opts     Options
	width    int
	height   int
	page     Page
	showHelp bool
	paused   bool

	procs       []model.ProcessSnapshot
	health      map[int]model.HealthFlags
	ledger      map[int][]model.ActionRecord
	suggestions []model.Suggestion
	selected    int
	selPID      int
	scroll      int

	filter    string
	filtering bool
	// confirmKill is the pid awaiting a y/n answer; zero means none.
	confirmKill int

	events   []model.Event
	evSub    <-chan model.Event
	evCancel func()

	cpuTrail   map[int][]float64
	totalCPU   []float64
	trailStart time.Time
	trailEnd   time.Time

	status   string
	statusAt time.Time
}

// NewModel subscribes to engine events and prepares the console.
func NewModel(eng Engine, opts Options) Model {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	sub, cancel := eng.Events()
	return Model{
		eng:      eng,
		opts:     opts,
		health:   map[int]model.HealthFlags{},
		ledger:   map[int][]model.ActionRecord{},
		events:   eng.RecentEvents(),
		evSub:    sub,
		evCancel: cancel,
		cpuTrail: map[int][]float64{},
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(0), waitEvent(m.evSub))
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func waitEvent(ch <-chan model.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg(e)
	}
}

// refresh pulls the current view of the engine.
func (m *Model) refresh(now time.Time) {
	m.procs = m.eng.Processes(m.eng.SortKey(), m.filter)
	m.health = m.eng.Health()
	m.suggestions = m.eng.Suggestions(context.Background())

	m.ledger = make(map[int][]model.ActionRecord)
	for _, r := range m.eng.Ledger(0) {
		m.ledger[r.PID] = append(m.ledger[r.PID], r)
	}

	live := make(map[int]bool, len(m.procs))
	total := 0.0
	for _, p := range m.procs {
		live[p.PID] = true
		total += p.CPUPct
		trail := append(m.cpuTrail[p.PID], p.CPUPct)
		if len(trail) > trailLen {
			trail = trail[len(trail)-trailLen:]
		}
		m.cpuTrail[p.PID] = trail
	}
	for pid := range m.cpuTrail {
		if !live[pid] {
			delete(m.cpuTrail, pid)
		}
	}
	m.totalCPU = append(m.totalCPU, util.Clamp(total, 0, 100))
	if len(m.totalCPU) > trailLen {
		m.totalCPU = m.totalCPU[len(m.totalCPU)-trailLen:]
		m.trailStart = m.trailStart.Add(m.opts.Interval)
	}
	if m.trailStart.IsZero() {
		m.trailStart = now
	}
	m.trailEnd = now

	// keep the cursor on the same process across re-sorts
	m.selected = 0
	for i, p := range m.procs {
		if p.PID == m.selPID {
			m.selected = i
			break
		}
	}
	if len(m.procs) > 0 {
		m.selPID = m.procs[m.selected].PID
	}
}

func (m Model) current() (model.ProcessSnapshot, bool) {
	if m.selected < 0 || m.selected >= len(m.procs) {
		return model.ProcessSnapshot{}, false
	}
	return m.procs[m.selected], true
}

func (m *Model) setStatus(format string, args ...any) {
	m.status = fmt.Sprintf(format, args...)
	m.statusAt = time.Now()
}

// apply runs spec against the selected process off the UI goroutine.
func (m Model) apply(label string, spec model.ActionSpec) tea.Cmd {
	p, ok := m.current()
	if !ok {
		return nil
	}
	eng := m.eng
	return func() tea.Msg {
		return outcomeMsg{label: label, outcomes: eng.ApplyAction(context.Background(), []int{p.PID}, spec)}
	}
}

func (m Model) revert() tea.Cmd {
	p, ok := m.current()
	if !ok {
		return nil
	}
	eng := m.eng
	return func() tea.Msg {
		kinds, err := eng.RevertPID(context.Background(), p.PID)
		if len(kinds) == 0 && err == nil {
			return statusMsg{text: fmt.Sprintf("nothing to revert for pid %d", p.PID)}
		}
		names := make([]string, len(kinds))
		for i, k := range kinds {
			names[i] = string(k)
		}
		return statusMsg{text: fmt.Sprintf("reverted pid %d: %s", p.PID, strings.Join(names, ", ")), err: err}
	}
}

func (m Model) nextProfile() tea.Cmd {
	names := engine.ProfileNames()
	next := names[0]
	for i, n := range names {
		if strings.EqualFold(n, m.eng.Profile()) {
			next = names[(i+1)%len(names)]
		}
	}
	eng := m.eng
	return func() tea.Msg {
		if err := eng.ApplyProfile(context.Background(), next); err != nil {
			return statusMsg{err: err}
		}
		return statusMsg{text: "profile " + next}
	}
}

func (m Model) applySuggestions() tea.Cmd {
	eng := m.eng
	return func() tea.Msg {
		return outcomeMsg{label: "suggestions", outcomes: eng.ApplySuggestions(context.Background())}
	}
}

// whitelist hides the selected name from governance and persists it.
func (m Model) whitelist() tea.Cmd {
	p, ok := m.current()
	if !ok {
		return nil
	}
	name := strings.ToLower(p.Name)
	list := append(m.eng.Whitelist(), name)
	m.eng.SetWhitelist(list)
	path := m.opts.ConfigPath
	return func() tea.Msg {
		if path == "" {
			return statusMsg{text: name + " whitelisted for this session"}
		}
		cfg, err := config.Load(path)
		if err != nil {
			return statusMsg{err: err}
		}
		cfg.Whitelist = append(cfg.Whitelist, name)
		if err := config.Save(path, cfg); err != nil {
			return statusMsg{err: err}
		}
		return statusMsg{text: name + " whitelisted"}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		if !m.paused {
			m.refresh(time.Time(msg))
		}
		return m, tick(m.opts.Interval)

	case eventMsg:
		m.events = append(m.events, model.Event(msg))
		if len(m.events) > keepEvent {
			m.events = m.events[len(m.events)-keepEvent:]
		}
		return m, waitEvent(m.evSub)

	case outcomeMsg:
		m.setStatus("%s", summarize(msg.label, msg.outcomes))
		m.refresh(time.Now())
		return m, nil

	case statusMsg:
		if msg.err != nil {
			m.setStatus("error: %v", msg.err)
		} else {
			m.setStatus("%s", msg.text)
		}
		m.refresh(time.Now())
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		m.evCancel()
		return m, tea.Quit
	}
	if m.showHelp {
		m.showHelp = false
		return m, nil
	}
	if m.confirmKill != 0 {
		pid := m.confirmKill
		m.confirmKill = 0
		if key != "y" && key != "Y" {
			m.setStatus("terminate cancelled")
			return m, nil
		}
		if p, ok := m.current(); !ok || p.PID != pid {
			m.setStatus("selection changed, terminate cancelled")
			return m, nil
		}
		return m, m.apply("terminate", model.ActionSpec{Kind: model.KindTerminate, Confirmed: true})
	}
	if m.filtering {
		switch msg.Type {
		case tea.KeyEnter:
			m.filtering = false
		case tea.KeyEsc:
			m.filtering = false
			m.filter = ""
		case tea.KeyBackspace:
			if len(m.filter) > 0 {
				m.filter = m.filter[:len(m.filter)-1]
			}
		case tea.KeyRunes, tea.KeySpace:
			m.filter += string(msg.Runes)
		}
		m.refresh(time.Now())
		return m, nil
	}

	switch key {
	case "q":
		m.evCancel()
		return m, tea.Quit
	case "?":
		m.showHelp = true
	case "1", "2", "3", "4":
		m.page = Page(key[0] - '1')
		m.scroll = 0
	case "tab":
		m.page = (m.page + 1) % pageCount
		m.scroll = 0
	case " ":
		m.paused = !m.paused
	case "j", "down":
		if m.page == PageProcesses {
			if m.selected < len(m.procs)-1 {
				m.selected++
				m.selPID = m.procs[m.selected].PID
			}
		} else {
			m.scroll++
		}
	case "k", "up":
		if m.page == PageProcesses {
			if m.selected > 0 {
				m.selected--
				m.selPID = m.procs[m.selected].PID
			}
		} else if m.scroll > 0 {
			m.scroll--
		}
	case "s":
		m.eng.SetSort(m.eng.SortKey().Next())
		m.refresh(time.Now())
	case "/":
		m.filtering = true
	case "esc":
		m.filter = ""
		m.refresh(time.Now())
	case "g":
		m.eng.ToggleGovernor(!m.eng.GovernorEnabled())
	case "f":
		m.eng.SetFollowForeground(!m.eng.FollowForeground())
	case "p":
		return m, m.nextProfile()
	case "x":
		return m, m.applySuggestions()
	case "w":
		return m, m.whitelist()
	case "r":
		return m, m.revert()
	case "l":
		return m, m.apply("lower priority", model.ActionSpec{Kind: model.KindPriority, Priority: model.PriorityBelowNormal, Guard: model.GuardDowngradeOnly})
	case "n":
		return m, m.apply("normal priority", model.ActionSpec{Kind: model.KindPriority, Priority: model.PriorityNormal})
	case "h":
		return m, m.apply("high priority", model.ActionSpec{Kind: model.KindPriority, Priority: model.PriorityHigh, Guard: model.GuardUpgradeOnly})
	case "m":
		return m, m.apply("memory priority", model.ActionSpec{Kind: model.KindMemPrio, MemoryLevel: model.MemoryPriorityLow})
	case "t":
		return m, m.apply("trim", model.ActionSpec{Kind: model.KindTrim})
	case "e":
		return m, m.apply("eco throttle", model.ActionSpec{Kind: model.KindThrottle, Throttle: true})
	case "a":
		return m, m.apply("affinity", model.ActionSpec{Kind: model.KindAffinity, AffinityPreset: engine.PresetHalfEven})
	case "c":
		return m, m.apply("contain", model.ActionSpec{Kind: model.KindContain})
	case "z":
		return m, m.apply("suspend", model.ActionSpec{Kind: model.KindSuspend})
	case "u":
		return m, m.apply("resume", model.ActionSpec{Kind: model.KindResume})
	case "K":
		if p, ok := m.current(); ok {
			m.confirmKill = p.PID
		}
	}
	return m, nil
}

// summarize renders "trim: 1 ok" style status text.
func summarize(label string, outcomes []model.Outcome) string {
	if len(outcomes) == 0 {
		return label + ": nothing to do"
	}
	counts := map[model.OutcomeStatus]int{}
	var reason string
	for _, o := range outcomes {
		counts[o.Status]++
		if !o.OK() && reason == "" {
			reason = o.Reason
		}
	}
	var parts []string
	for s, n := range counts {
		parts = append(parts, fmt.Sprintf("%d %s", n, s))
	}
	sort.Strings(parts)
	out := label + ": " + strings.Join(parts, ", ")
	if reason != "" {
		out += " (" + reason + ")"
	}
	return out
}

func (m Model) View() string {
	if m.showHelp {
		return renderHelp()
	}
	if m.width == 0 {
		return "Loading..."
	}

	var content string
	switch m.page {
	case PageProcesses:
		content = m.renderProcessPage()
	case PageEffects:
		content = m.renderEffectsPage()
	case PageEvents:
		content = m.renderEventsPage()
	case PageRules:
		content = m.renderRulesPage()
	}
	content = m.renderHeader() + "\n" + content

	lines := strings.Split(content, "\n")
	maxLines := m.height - 2
	if maxLines > 0 && len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	return strings.Join(lines, "\n") + "\n" + m.renderStatusBar()
}

func (m Model) renderHeader() string {
	onOff := func(on bool) string {
		if on {
			return okStyle.Render("ON")
		}
		return dimStyle.Render("off")
	}
	profile := m.eng.Profile()
	if profile == "" {
		profile = "-"
	}
	fg := "-"
	if pid := m.eng.ForegroundPID(); pid > 0 {
		fg = fmt.Sprintf("%d", pid)
	}
	parts := []string{
		titleStyle.Render("xgov"),
		labelStyle.Render("profile ") + valueStyle.Render(profile),
		labelStyle.Render("governor ") + onOff(m.eng.GovernorEnabled()),
		labelStyle.Render("follow ") + onOff(m.eng.FollowForeground()),
		labelStyle.Render("fg ") + valueStyle.Render(fg),
		labelStyle.Render("sort ") + valueStyle.Render(string(m.eng.SortKey())),
		labelStyle.Render("procs ") + valueStyle.Render(fmt.Sprintf("%d", len(m.procs))),
	}
	if m.paused {
		parts = append(parts, warnStyle.Render("PAUSED"))
	}
	return strings.Join(parts, "  ")
}

func (m Model) renderStatusBar() string {
	var tabs []string
	for i, name := range pageNames {
		label := fmt.Sprintf("%d:%s", i+1, name)
		if Page(i) == m.page {
			tabs = append(tabs, headerStyle.Render("["+label+"]"))
		} else {
			tabs = append(tabs, dimStyle.Render(" "+label+" "))
		}
	}
	bar := strings.Join(tabs, "")

	switch {
	case m.confirmKill != 0:
		bar += "  " + critStyle.Render(fmt.Sprintf("Terminate pid %d? y/N", m.confirmKill))
	case m.filtering:
		bar += "  " + warnStyle.Render("filter: ") + valueStyle.Render(m.filter+"▏")
	case m.status != "" && time.Since(m.statusAt) < 8*time.Second:
		bar += "  " + valueStyle.Render(m.status)
	default:
		bar += "  " + helpStyle.Render("?:help q:quit")
	}
	return bar
}

func renderHelp() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("xgov - process governor"))
	sb.WriteString("\n\n")
	sb.WriteString(headerStyle.Render("Navigation"))
	sb.WriteString("\n")
	sb.WriteString("  1-4 / Tab  Processes, Effects, Events, Rules\n")
	sb.WriteString("  j/k        Move selection / scroll\n")
	sb.WriteString("  s          Cycle sort (cpu, memory, pid, name)\n")
	sb.WriteString("  /          Filter by name (Enter keeps, Esc clears)\n")
	sb.WriteString("  Space      Pause refresh\n")
	sb.WriteString("\n")
	sb.WriteString(headerStyle.Render("Actions on the selected process"))
	sb.WriteString("\n")
	sb.WriteString("  l / n / h  Priority below normal / normal / high\n")
	sb.WriteString("  m          Memory priority low\n")
	sb.WriteString("  t          Trim working set\n")
	sb.WriteString("  e          Eco throttle\n")
	sb.WriteString("  a          Affinity to the even cores\n")
	sb.WriteString("  c          Contain in the governance group\n")
	sb.WriteString("  z / u      Suspend / resume\n")
	sb.WriteString("  K          Terminate (asks first)\n")
	sb.WriteString("  r          Revert everything applied to it\n")
	sb.WriteString("  w          Whitelist its name\n")
	sb.WriteString("\n")
	sb.WriteString(headerStyle.Render("Engine"))
	sb.WriteString("\n")
	sb.WriteString("  g          Toggle governor\n")
	sb.WriteString("  f          Toggle foreground follow\n")
	sb.WriteString("  p          Cycle profile\n")
	sb.WriteString("  x          Apply advisor suggestions\n")
	sb.WriteString("  q/Ctrl+C   Quit\n")
	sb.WriteString("\n")
	sb.WriteString(helpStyle.Render("Press any key to close"))
	return sb.String()
}
