package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/varalys/skillvet/internal/audit"
	"github.com/varalys/skillvet/internal/report"
	"github.com/varalys/skillvet/internal/types"
)

var (
	tableBorderStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.NormalBorder()).
				BorderForeground(lipgloss.Color("240"))

	detailPaneBorderStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.NormalBorder()).
				BorderForeground(lipgloss.Color("240"))

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("6")).
			Bold(true).
			Padding(0, 1)

	matchStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	keyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("7")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	statusStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("7"))

	emptyTextStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15")).
			Align(lipgloss.Center)

	popupStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(1, 4)

	sevCritStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	sevHighStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	sevMedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	sevLowStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
)

const (
	defaultStatus = "q: quit | ?: help | j/k: navigate | o: open | b: baseline | i: ignore | r: rescan"
	emptyStatus   = "q: quit | r: rescan | a: history"
)

// severityText returns plain text for severity (ANSI codes break table truncation).
func severityText(s types.Severity) string {
	switch s {
	case types.SevCritical:
		return "CRIT"
	case types.SevHigh:
		return "HIGH"
	case types.SevMed:
		return "MED"
	case types.SevLow:
		return "LOW"
	default:
		return "INFO"
	}
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

// Sort columns cycled with "s".
const (
	SortDefault  = ""
	SortSeverity = "severity"
	SortTarget   = "target"
	SortScore    = "score"
)

// Options configures a Model. Root anchors the baseline, ignore file and
// audit log; Rescan is optional.
type Options struct {
	Root         string
	BaselinePath string
	Baseline     report.Baseline
	Rescan       func() ([]types.TargetReport, []types.ScanFailure, error)
	Prefs        Prefs
}

// Model is the state of the findings viewer.
type Model struct {
	table       table.Model
	viewport    viewport.Model
	spinner     spinner.Model
	searchInput textinput.Model

	opts     Options
	reports  map[string]types.TrustReport
	findings []types.TargetFinding
	failures []types.ScanFailure
	display  []int // indices into findings, in display order

	baseline report.Baseline

	quitting          bool
	ready             bool
	scanning          bool
	viewingCached     bool
	viewingHistorical bool
	lastScanTime      time.Time
	width             int
	height            int
	statusMessage     string
	statusTimeout     *time.Time

	showHelp       bool
	showExportMenu bool
	showHistory    bool
	history        []audit.ScanRecord
	historySel     int

	searchMode     bool
	searchQuery    string
	severityFilter types.Severity
	sortColumn     string
	sortReverse    bool
	contextLines   int
	hideInfo       bool
}

type statusMsg string

type reportsMsg struct {
	reports  []types.TargetReport
	failures []types.ScanFailure
}

// NewModel builds a viewer over the findings of every report.
func NewModel(reports []types.TargetReport, failures []types.ScanFailure, opts Options) Model {
	columns := []table.Column{
		{Title: "Sev", Width: 8},
		{Title: "Score", Width: 7},
		{Title: "ID", Width: 20},
		{Title: "Target", Width: 36},
		{Title: "Title", Width: 40},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	s := table.DefaultStyles()
	s.Header = lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Foreground(lipgloss.Color("15")).
		Bold(true).
		Padding(0, 1).
		Align(lipgloss.Left)
	s.Selected = lipgloss.NewStyle().
		Foreground(lipgloss.Color("232")).
		Background(lipgloss.Color("208")).
		Bold(true).
		Padding(0, 1)
	s.Cell = lipgloss.NewStyle().Padding(0, 1)
	t.SetStyles(s)

	// Line spinner avoids Braille characters that render poorly on some terminals
	sp := spinner.New()
	sp.Spinner = spinner.Line
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	ti := textinput.New()
	ti.Placeholder = "Search target, ID, title or evidence..."
	ti.CharLimit = 100
	ti.Width = 50
	ti.Prompt = "/ "
	ti.PromptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	ti.TextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))

	if opts.Baseline.Items == nil {
		opts.Baseline = report.Baseline{Items: map[string]bool{}}
	}
	if opts.Root == "" {
		opts.Root = "."
	}
	if opts.BaselinePath == "" {
		opts.BaselinePath = report.DefaultBaselineFile
	}
	if opts.Prefs.ContextLines == 0 {
		opts.Prefs = DefaultPrefs()
	}

	m := Model{
		table:        t,
		spinner:      sp,
		searchInput:  ti,
		opts:         opts,
		baseline:     opts.Baseline,
		lastScanTime: time.Now(),
		contextLines: opts.Prefs.ContextLines,
		hideInfo:     opts.Prefs.HideInfo,
	}
	m.setReports(reports, failures)
	return m
}

func (m *Model) setReports(reports []types.TargetReport, failures []types.ScanFailure) {
	m.reports = make(map[string]types.TrustReport, len(reports))
	for _, r := range reports {
		m.reports[r.Target] = r.Report
	}
	m.findings = report.Flatten(reports)
	sort.SliceStable(m.findings, func(i, j int) bool {
		return m.findings[i].Finding.Severity.Rank() < m.findings[j].Finding.Severity.Rank()
	})
	m.failures = failures
	m.applyFilters()
	if len(m.display) == 0 {
		m.statusMessage = emptyStatus
	} else {
		m.statusMessage = defaultStatus
	}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *Model) rescan() tea.Cmd {
	rescan := m.opts.Rescan
	return func() tea.Msg {
		if rescan == nil {
			return statusMsg("Rescan not available")
		}
		reports, failures, err := rescan()
		if err != nil {
			return statusMsg(fmt.Sprintf("Scan error: %v", err))
		}
		return reportsMsg{reports: reports, failures: failures}
	}
}

func (m *Model) setStatus(msg string, d time.Duration) {
	timeout := time.Now().Add(d)
	m.statusTimeout = &timeout
	m.statusMessage = msg
}

func (m *Model) matches(tf types.TargetFinding) bool {
	f := tf.Finding
	if m.hideInfo && f.Severity == types.SevInfo {
		return false
	}
	if m.severityFilter != "" && f.Severity != m.severityFilter {
		return false
	}
	if m.searchQuery == "" {
		return true
	}
	q := strings.ToLower(m.searchQuery)
	for _, s := range []string{tf.Target, f.ID, f.Title, f.Evidence, f.OwaspCategory} {
		if strings.Contains(strings.ToLower(s), q) {
			return true
		}
	}
	return false
}

func (m *Model) applyFilters() {
	m.display = m.display[:0]
	for i, tf := range m.findings {
		if m.matches(tf) {
			m.display = append(m.display, i)
		}
	}
	m.sortDisplay()
	m.rebuildTableRows()
}

func (m *Model) clearFilters() {
	m.searchQuery = ""
	m.severityFilter = ""
	m.searchInput.SetValue("")
	m.applyFilters()
}

func (m *Model) sortDisplay() {
	less := func(a, b types.TargetFinding) bool { return false }
	switch m.sortColumn {
	case SortSeverity:
		less = func(a, b types.TargetFinding) bool { return a.Finding.Severity.Rank() < b.Finding.Severity.Rank() }
	case SortTarget:
		less = func(a, b types.TargetFinding) bool { return a.Target < b.Target }
	case SortScore:
		less = func(a, b types.TargetFinding) bool { return m.reports[a.Target].Overall < m.reports[b.Target].Overall }
	default:
		sort.Ints(m.display)
		return
	}
	sort.SliceStable(m.display, func(i, j int) bool {
		a, b := m.findings[m.display[i]], m.findings[m.display[j]]
		if m.sortReverse {
			return less(b, a)
		}
		return less(a, b)
	})
}

func (m *Model) cycleSortColumn() {
	switch m.sortColumn {
	case SortDefault:
		m.sortColumn = SortSeverity
	case SortSeverity:
		m.sortColumn = SortTarget
	case SortTarget:
		m.sortColumn = SortScore
	default:
		m.sortColumn = SortDefault
	}
	m.sortReverse = false
	m.applyFilters()
}

func (m *Model) rebuildTableRows() {
	rows := make([]table.Row, len(m.display))
	for i, idx := range m.display {
		tf := m.findings[idx]
		sev := severityText(tf.Finding.Severity)
		if m.baseline.Has(tf) {
			sev = "(b) " + sev
		}
		score := ""
		if r, ok := m.reports[tf.Target]; ok {
			score = fmt.Sprintf("%d", r.Overall)
		}
		rows[i] = table.Row{sev, score, tf.Finding.ID, tf.Target, tf.Finding.Title}
	}
	m.table.SetRows(rows)
	if m.table.Cursor() >= len(rows) {
		m.table.SetCursor(0)
	}
	m.updateViewportContent()
}

func (m *Model) selected() *types.TargetFinding {
	c := m.table.Cursor()
	if c < 0 || c >= len(m.display) {
		return nil
	}
	tf := m.findings[m.display[c]]
	return &tf
}

// visibleFindings returns the findings currently shown, in display order.
func (m *Model) visibleFindings() []types.TargetFinding {
	out := make([]types.TargetFinding, len(m.display))
	for i, idx := range m.display {
		out[i] = m.findings[idx]
	}
	return out
}

// jumpToSevere moves to the next finding that is high or critical.
func (m *Model) jumpToSevere(direction int) bool {
	n := len(m.display)
	if n == 0 {
		return false
	}
	for i, c := 1, m.table.Cursor(); i < n; i++ {
		idx := c + i*direction
		if idx < 0 || idx >= n {
			return false
		}
		if m.findings[m.display[idx]].Finding.Severity.Rank() <= types.SevHigh.Rank() {
			m.table.SetCursor(idx)
			return true
		}
	}
	return false
}

func (m *Model) updateViewportContent() {
	if !m.ready {
		return
	}
	tf := m.selected()
	if tf == nil {
		m.viewport.SetContent("")
		return
	}
	f := tf.Finding
	var b strings.Builder
	b.WriteString(titleStyle.Render("Finding Details") + "\n\n")
	if m.baseline.Has(*tf) {
		b.WriteString(dimStyle.Italic(true).Render("BASELINED: This finding is known/accepted. Press 'b' to remove it from the baseline.") + "\n\n")
	}
	row := func(k, v string) {
		if v != "" {
			b.WriteString(keyStyle.Render(k) + " " + v + "\n")
		}
	}
	row("Target:", tf.Target)
	if r, ok := m.reports[tf.Target]; ok {
		row("Skill:", fmt.Sprintf("%s (%s)  %d/100  %s", r.Metadata.SkillName, r.Metadata.SkillFormat, r.Overall, strings.ToUpper(string(r.Badge))))
	}
	row("ID:", f.ID)
	row("Severity:", severityStyle(f.Severity).Render(string(f.Severity)))
	row("Category:", string(f.Category))
	row("Taxonomy:", f.OwaspCategory+" "+types.TaxonomyTitle(f.OwaspCategory))
	row("Deduction:", fmt.Sprintf("%d", f.Deduction))
	if f.LineNumber > 0 {
		row("Line:", fmt.Sprintf("%d", f.LineNumber))
	}
	b.WriteString("\n" + keyStyle.Render(f.Title) + "\n")
	b.WriteString(f.Description + "\n")
	if f.Evidence != "" {
		b.WriteString("\n" + keyStyle.Render("Evidence:") + " " + matchStyle.Render(f.Evidence) + "\n")
	}
	b.WriteString("\n" + keyStyle.Render("Recommendation:") + " " + f.Recommendation + "\n")

	if lines, start, err := readFileContext(tf.Target, f.LineNumber, m.contextLines); err == nil && len(lines) > 0 {
		hint := fmt.Sprintf(" (+/- to expand/contract, showing %d lines)", m.contextLines*2+1)
		b.WriteString("\n" + keyStyle.Render("Context:") + dimStyle.Render(hint) + "\n")
		lineStyle := lipgloss.NewStyle().Background(lipgloss.Color("236"))
		for i, line := range lines {
			n := start + i
			num := dimStyle.Render(fmt.Sprintf("%4d ", n))
			if n == f.LineNumber {
				b.WriteString(num + lineStyle.Render(highlightLine(line, tf.Target)) + "\n")
			} else {
				b.WriteString(num + highlightLine(line, tf.Target) + "\n")
			}
		}
	}
	m.viewport.SetContent(b.String())
}

func severityStyle(s types.Severity) lipgloss.Style {
	switch s {
	case types.SevCritical:
		return sevCritStyle
	case types.SevHigh:
		return sevHighStyle
	case types.SevMed:
		return sevMedStyle
	case types.SevLow:
		return sevLowStyle
	}
	return dimStyle
}

func (m *Model) resize() {
	usable := m.width - 12
	sevW, scoreW, idW := 8, 7, 20
	rest := max(50, usable-sevW-scoreW-idW)
	targetW := rest * 45 / 100
	titleW := rest - targetW
	cols := m.table.Columns()
	cols[0].Width, cols[1].Width, cols[2].Width, cols[3].Width, cols[4].Width = sevW, scoreW, idW, targetW, titleW
	m.table.SetColumns(cols)

	available := m.height - 2
	tableHeight := available * 45 / 100
	viewportHeight := available - tableHeight - detailPaneBorderStyle.GetVerticalFrameSize() - 1
	m.table.SetWidth(m.width)
	m.table.SetHeight(tableHeight)
	if m.viewport.Height == 0 {
		m.viewport = viewport.New(m.width, viewportHeight)
	} else {
		m.viewport.Width = m.width
		m.viewport.Height = viewportHeight
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.ready = true
		m.resize()
		m.updateViewportContent()
		return m, nil

	case reportsMsg:
		m.scanning = false
		m.viewingCached = false
		m.viewingHistorical = false
		m.lastScanTime = time.Now()
		m.setReports(msg.reports, msg.failures)
		if len(m.findings) == 0 {
			m.setStatus("Rescan complete - no findings", 5*time.Second)
		} else {
			m.setStatus(fmt.Sprintf("Rescan complete - %d findings in %d targets", len(m.findings), len(msg.reports)), 5*time.Second)
		}
		return m, nil

	case statusMsg:
		m.scanning = false
		m.setStatus(string(msg), 3*time.Second)
		return m, nil

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		if m.statusTimeout != nil && time.Now().After(*m.statusTimeout) {
			m.statusTimeout = nil
			m.statusMessage = defaultStatus
			if len(m.display) == 0 {
				m.statusMessage = emptyStatus
			}
		}
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	key := msg.String()

	if m.showHelp {
		m.showHelp = false
		return m, nil
	}
	if m.showExportMenu {
		m.showExportMenu = false
		switch key {
		case "1", "j":
			return m, m.exportFindings("json")
		case "2", "c":
			return m, m.exportFindings("csv")
		case "3", "s":
			return m, m.exportFindings("sarif")
		}
		return m, nil
	}
	if m.showHistory {
		return m.handleHistoryKey(key)
	}
	if m.searchMode {
		switch key {
		case "enter":
			m.searchMode = false
			m.searchInput.Blur()
		case "esc":
			m.searchMode = false
			m.searchInput.Blur()
			m.clearFilters()
		default:
			m.searchInput, cmd = m.searchInput.Update(msg)
			m.searchQuery = m.searchInput.Value()
			m.applyFilters()
		}
		return m, cmd
	}

	empty := len(m.display) == 0
	switch key {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "?":
		m.showHelp = true
	case "/":
		m.searchMode = true
		m.searchInput.SetValue(m.searchQuery)
		m.searchInput.Focus()
		return m, textinput.Blink
	case "1", "2", "3", "4", "5":
		sev := []types.Severity{types.SevCritical, types.SevHigh, types.SevMed, types.SevLow, types.SevInfo}[key[0]-'1']
		m.severityFilter = sev
		m.applyFilters()
		m.setStatus(fmt.Sprintf("Showing %s severity only (Esc to clear)", severityText(sev)), 3*time.Second)
	case "esc":
		if m.searchQuery != "" || m.severityFilter != "" {
			m.clearFilters()
			m.setStatus("Filters cleared", 3*time.Second)
		}
	case "H":
		m.hideInfo = !m.hideInfo
		m.applyFilters()
		m.savePrefs()
		if m.hideInfo {
			m.setStatus("Informational findings hidden", 3*time.Second)
		} else {
			m.setStatus("Informational findings shown", 3*time.Second)
		}
	case "s":
		m.cycleSortColumn()
		if m.sortColumn == SortDefault {
			m.setStatus("Sort: default order", 3*time.Second)
		} else {
			m.setStatus(fmt.Sprintf("Sort by %s (S to reverse)", m.sortColumn), 3*time.Second)
		}
	case "S":
		if m.sortColumn != SortDefault {
			m.sortReverse = !m.sortReverse
			m.applyFilters()
		}
	case "n", "N":
		dir := 1
		if key == "N" {
			dir = -1
		}
		if m.jumpToSevere(dir) {
			m.updateViewportContent()
		} else {
			m.setStatus("No more HIGH or CRITICAL findings", 2*time.Second)
		}
	case "+", "=":
		m.contextLines = min(20, m.contextLines+2)
		m.savePrefs()
		m.updateViewportContent()
	case "-", "_":
		m.contextLines = max(1, m.contextLines-2)
		m.savePrefs()
		m.updateViewportContent()
	case "o", "enter":
		if !empty {
			return m, m.openEditor()
		}
	case "b":
		if !empty {
			return m, m.toggleBaseline()
		}
	case "i":
		if !empty {
			return m, m.ignoreTarget()
		}
	case "I":
		if !empty {
			return m, m.unignoreTarget()
		}
	case "y":
		if !empty {
			return m, m.copyEvidence()
		}
	case "Y":
		if !empty {
			return m, m.copyFinding()
		}
	case "e":
		if !empty {
			m.showExportMenu = true
		}
	case "a":
		history, err := audit.NewAuditLog(m.opts.Root).LoadHistory()
		if err != nil {
			m.setStatus(fmt.Sprintf("History error: %v", err), 3*time.Second)
			return m, nil
		}
		m.history = history
		m.historySel = 0
		m.showHistory = true
	case "r":
		if m.opts.Rescan == nil {
			m.setStatus("Rescan not available", 3*time.Second)
			return m, nil
		}
		if !m.scanning {
			m.scanning = true
			m.statusMessage = "Rescanning..."
			return m, m.rescan()
		}
	case "g", "home":
		m.table.GotoTop()
		m.updateViewportContent()
	case "G", "end":
		m.table.GotoBottom()
		m.updateViewportContent()
	case "ctrl+d":
		m.table.MoveDown(max(1, m.table.Height()/2))
		m.updateViewportContent()
	case "ctrl+u":
		m.table.MoveUp(max(1, m.table.Height()/2))
		m.updateViewportContent()
	default:
		m.table, cmd = m.table.Update(msg)
		m.updateViewportContent()
		return m, cmd
	}
	return m, nil
}

func (m Model) handleHistoryKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "q", "esc", "a":
		m.showHistory = false
	case "up", "k":
		if m.historySel > 0 {
			m.historySel--
		}
	case "down", "j":
		if m.historySel < len(m.history)-1 {
			m.historySel++
		}
	case "enter":
		if m.historySel < len(m.history) {
			rec := m.history[m.historySel]
			m.loadRecord(rec)
			m.showHistory = false
			m.setStatus(fmt.Sprintf("Loaded historical scan from %s", rec.Timestamp.Format("Jan 2, 15:04")), 5*time.Second)
		}
	case "d", "x", "delete", "backspace":
		log := audit.NewAuditLog(m.opts.Root)
		if err := log.DeleteRecord(m.historySel); err == nil {
			if history, err := log.LoadHistory(); err == nil {
				m.history = history
				m.historySel = max(0, min(m.historySel, len(history)-1))
			}
		}
	}
	return m, nil
}

// loadRecord shows a past scan. Only the per-skill summary survives in the
// audit log, so category scores are absent.
func (m *Model) loadRecord(rec audit.ScanRecord) {
	var reports []types.TargetReport
	byTarget := map[string][]types.Finding{}
	for _, tf := range rec.AllFindings {
		byTarget[tf.Target] = append(byTarget[tf.Target], tf.Finding)
	}
	for _, s := range rec.Skills {
		reports = append(reports, types.TargetReport{Target: s.Target, Report: types.TrustReport{
			Overall:  s.Score,
			Badge:    s.Badge,
			Findings: byTarget[s.Target],
			Metadata: types.ScanMetadata{SkillName: s.Name},
		}})
	}
	m.setReports(reports, rec.FailedTargets)
	m.viewingHistorical = true
	m.lastScanTime = rec.Timestamp
}

func (m *Model) savePrefs() {
	_ = SavePrefs(Prefs{ContextLines: m.contextLines, HideInfo: m.hideInfo})
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Initializing..."
	}
	if m.scanning {
		box := popupStyle.Width(55).Align(lipgloss.Center).Render(fmt.Sprintf("%s  Rescanning...\n\nPlease wait", m.spinner.View()))
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
	}
	if m.showHelp {
		return m.helpView()
	}
	if m.showExportMenu {
		return m.exportView()
	}
	if m.showHistory {
		return m.historyView()
	}

	counts := map[types.Severity]int{}
	for _, tf := range m.visibleFindings() {
		counts[tf.Finding.Severity]++
	}
	var stats string
	if len(m.findings) == 0 {
		stats = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(fmt.Sprintf("[OK] No findings in %d targets", len(m.reports)))
	} else {
		stats = fmt.Sprintf("Showing: %d/%d  |  %s %-3d %s %-3d %s %-3d %s %-3d  |  Targets: %d",
			len(m.display), len(m.findings),
			sevCritStyle.Render("Crit:"), counts[types.SevCritical],
			sevHighStyle.Render("High:"), counts[types.SevHigh],
			sevMedStyle.Render("Med:"), counts[types.SevMed],
			sevLowStyle.Render("Low:"), counts[types.SevLow],
			len(m.reports))
		var filters []string
		if m.searchQuery != "" {
			filters = append(filters, fmt.Sprintf("search:'%s'", m.searchQuery))
		}
		if m.severityFilter != "" {
			filters = append(filters, "sev:"+severityText(m.severityFilter))
		}
		if len(filters) > 0 {
			stats += fmt.Sprintf("  [FILTER: %s]", strings.Join(filters, ", "))
		}
		if m.sortColumn != SortDefault {
			arrow := "↑"
			if m.sortReverse {
				arrow = "↓"
			}
			stats += fmt.Sprintf("  [SORT: %s %s]", m.sortColumn, arrow)
		}
	}
	if len(m.failures) > 0 {
		stats += fmt.Sprintf("  |  Failures: %d", len(m.failures))
	}
	statsHeader := lipgloss.NewStyle().Width(m.width).Padding(0, 2).
		Foreground(lipgloss.Color("15")).Background(lipgloss.Color("237")).Render(stats)

	tableRender := tableBorderStyle.Width(m.width).Height(m.table.Height()).Render(m.table.View())

	var detail string
	if len(m.display) == 0 {
		msg := "No findings to review.\n\nPress 'r' to rescan\nPress '?' for help"
		if len(m.findings) > 0 {
			msg = "No findings match filter.\n\nPress 'Esc' to clear filter"
		}
		detail = lipgloss.Place(m.width, m.viewport.Height, lipgloss.Center, lipgloss.Center, emptyTextStyle.Render(msg))
	} else {
		detail = m.viewport.View()
	}
	detailRender := detailPaneBorderStyle.Width(m.width).Height(m.viewport.Height).Render(detail)

	var timeInfo string
	switch {
	case m.viewingHistorical:
		timeInfo = "Viewing: " + m.lastScanTime.Format("Jan 2, 15:04")
	case m.viewingCached:
		timeInfo = fmt.Sprintf("Cached: %s ago", formatDuration(time.Since(m.lastScanTime)))
	default:
		timeInfo = fmt.Sprintf("Scanned: %s ago", formatDuration(time.Since(m.lastScanTime)))
	}
	spacer := max(1, m.width-4-lipgloss.Width(m.statusMessage)-lipgloss.Width(timeInfo))
	bottom := statusStyle.Width(m.width).Padding(0, 2).Render(m.statusMessage + strings.Repeat(" ", spacer) + timeInfo)
	if m.searchMode {
		bottom = lipgloss.NewStyle().Background(lipgloss.Color("235")).Foreground(lipgloss.Color("15")).
			Width(m.width).Padding(0, 1).Render(m.searchInput.View() + fmt.Sprintf(" (%d matches)", len(m.display)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, statsHeader, tableRender, detailRender, bottom)
}

func (m Model) helpView() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	section := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	row := func(key, desc string) string {
		return "  " + lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(key) +
			strings.Repeat(" ", max(1, 12-len(key))) +
			lipgloss.NewStyle().Foreground(lipgloss.Color("250")).Render(desc)
	}
	lines := []string{
		title.Render("Keyboard Shortcuts"), "",
		section.Render("Navigation"),
		row("j / k", "Move down / up"),
		row("Ctrl+d/u", "Half-page down / up"),
		row("g / G", "First / last row"),
		row("n / N", "Next / prev HIGH or CRITICAL"),
		"",
		section.Render("Search & Filter"),
		row("/", "Search findings"),
		row("1-5", "Filter CRIT / HIGH / MED / LOW / INFO"),
		row("H", "Hide / show INFO findings"),
		row("s / S", "Sort / reverse sort"),
		row("Esc", "Clear filters"),
		"",
		section.Render("Actions"),
		row("o / Enter", "Open skill in $EDITOR"),
		row("b", "Baseline / unbaseline finding"),
		row("i / I", "Ignore / unignore skill directory"),
		row("y / Y", "Copy evidence / full finding"),
		row("e", "Export (JSON/CSV/SARIF)"),
		row("+ / -", "Expand / contract context"),
		row("r", "Rescan"),
		row("a", "Scan history"),
		"",
		row("?", "Toggle help"),
		row("q", "Quit"),
		"",
		dimStyle.Italic(true).Render("Press any key to close"),
	}
	box := popupStyle.Width(52).Padding(1, 3).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

func (m Model) exportView() string {
	key := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	lines := []string{
		lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Render("Export Findings"), "",
		fmt.Sprintf("  %s  JSON  (human readable)", key.Render("1/j")),
		fmt.Sprintf("  %s  CSV   (spreadsheet)", key.Render("2/c")),
		fmt.Sprintf("  %s  SARIF (code scanning)", key.Render("3/s")),
		"",
		dimStyle.Italic(true).Render(fmt.Sprintf("Exporting %d findings", len(m.display))),
		"",
		dimStyle.Italic(true).Render("Esc to cancel"),
	}
	box := popupStyle.Width(40).Padding(1, 3).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

func (m Model) historyView() string {
	var content string
	if len(m.history) == 0 {
		content = dimStyle.Render("No scan history found.\n\nRun scans to build audit history.")
	} else {
		lines := []string{lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Render("SCAN HISTORY"), ""}
		for i, rec := range m.history {
			if i == 10 {
				break
			}
			summary := fmt.Sprintf("%s - %d targets, %d findings (%d new), %d failures",
				rec.Timestamp.Format("Jan 2, 15:04:05"), rec.Targets, rec.TotalFindings, rec.NewFindings, rec.Failures)
			if i == m.historySel {
				lines = append(lines, lipgloss.NewStyle().Foreground(lipgloss.Color("232")).
					Background(lipgloss.Color("208")).Bold(true).Render("  > "+summary))
				continue
			}
			style := lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
			if rec.TotalFindings == 0 {
				style = style.Foreground(lipgloss.Color("10"))
			} else if rec.NewFindings > 0 {
				style = style.Foreground(lipgloss.Color("11"))
			}
			lines = append(lines, style.Render("    "+summary))
		}
		lines = append(lines, "", dimStyle.Italic(true).Render("Enter: view | d: delete | a: close"))
		content = lipgloss.JoinVertical(lipgloss.Left, lines...)
	}
	box := popupStyle.Width(78).Padding(2, 4).Render(content)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}
