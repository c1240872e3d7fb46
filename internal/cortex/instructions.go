package cortex

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	cerrors "github.com/whytcard/cortex/internal/errors"
)

// InstructionSource identifies where an Instruction came from.
type InstructionSource string

const (
	InstructionSourceFile InstructionSource = "file"
	InstructionSourceUser InstructionSource = "user"
)

// InstructionCategory groups UserInstructions for display and filtering.
type InstructionCategory string

const (
	CategoryCommunication InstructionCategory = "communication"
	CategoryWorkflow      InstructionCategory = "workflow"
	CategoryDomain        InstructionCategory = "domain"
	CategoryCoding        InstructionCategory = "coding"
)

// Instruction is a single piece of standing guidance, either loaded from
// a `*.instructions.md` file or converted from a UserInstruction.
type Instruction struct {
	Name        string
	Description string
	ApplyTo     string // glob; "**" matches every file
	Content     string
	SourcePath  string
	Source      InstructionSource
}

// AppliesTo reports whether the instruction's ApplyTo glob matches
// filePath. "**" always matches.
func (i *Instruction) AppliesTo(filePath string) bool {
	if i.ApplyTo == "**" || i.ApplyTo == "" {
		return true
	}
	ok, err := doublestar.Match(i.ApplyTo, filePath)
	if err != nil {
		return strings.Contains(filePath, strings.ReplaceAll(i.ApplyTo, "**", ""))
	}
	return ok
}

// UserInstruction is a per-user preference, persisted outside this
// package (typically in the semantic or a dedicated config store) and
// replayed in at session start via AddUserInstructions. It always takes
// priority over file-based Instructions.
type UserInstruction struct {
	ID        string
	UserID    string
	Key       string
	Value     string
	Category  InstructionCategory
	Priority  int
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewUserInstruction creates an active UserInstruction with Priority 0.
func NewUserInstruction(userID, key, value string) UserInstruction {
	return UserInstruction{UserID: userID, Key: key, Value: value, Active: true, CreatedAt: time.Now().UTC()}
}

func (u UserInstruction) toInstruction() *Instruction {
	return &Instruction{
		Name:        u.Key,
		Description: "User instruction: " + string(u.Category),
		ApplyTo:     "**",
		Content:     u.Value,
		Source:      InstructionSourceUser,
	}
}

// InstructionsStats summarizes the loaded instruction set.
type InstructionsStats struct {
	Total       int
	FromFiles   int
	FromUser    int
	CurrentUser string
}

// InstructionsManager loads `*.instructions.md` files from a workspace
// and merges them with per-user instructions (which always win), serving
// both direct lookup and a formatted prompt-context string for injection
// into an LLM call.
type InstructionsManager struct {
	fileInstructions []*Instruction
	userInstructions []UserInstruction
	combined         []*Instruction
	instructionsDir  string
	currentUserID    string
}

// NewInstructionsManager creates an empty InstructionsManager.
func NewInstructionsManager() *InstructionsManager {
	return &InstructionsManager{}
}

// SetUser sets the current user id used to filter AddUserInstructions.
func (m *InstructionsManager) SetUser(userID string) {
	m.currentUserID = userID
	m.rebuildCombined()
}

// AddUserInstructions merges instructions (filtered to Active, and to
// the current user if one is set) into the manager.
func (m *InstructionsManager) AddUserInstructions(instructions []UserInstruction) {
	for _, ui := range instructions {
		if !ui.Active {
			continue
		}
		if m.currentUserID != "" && ui.UserID != m.currentUserID {
			continue
		}
		m.userInstructions = append(m.userInstructions, ui)
	}
	m.rebuildCombined()
}

// AddUserInstruction adds a single active instruction.
func (m *InstructionsManager) AddUserInstruction(instruction UserInstruction) {
	if !instruction.Active {
		return
	}
	m.userInstructions = append(m.userInstructions, instruction)
	m.rebuildCombined()
}

// GetUserInstructions returns every stored user instruction, for export.
func (m *InstructionsManager) GetUserInstructions() []UserInstruction {
	return m.userInstructions
}

func (m *InstructionsManager) rebuildCombined() {
	m.combined = nil

	sorted := make([]UserInstruction, len(m.userInstructions))
	copy(sorted, m.userInstructions)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority > sorted[j].Priority })

	for _, ui := range sorted {
		m.combined = append(m.combined, ui.toInstruction())
	}
	m.combined = append(m.combined, m.fileInstructions...)
}

// LoadFromWorkspace tries the conventional instruction directories under
// workspace (".github/instructions", ".instructions", "instructions") and
// loads the first one found.
func (m *InstructionsManager) LoadFromWorkspace(workspace string) (int, error) {
	candidates := []string{
		filepath.Join(workspace, ".github", "instructions"),
		filepath.Join(workspace, ".instructions"),
		filepath.Join(workspace, "instructions"),
	}
	for _, dir := range candidates {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return m.LoadFromDirectory(dir)
		}
	}
	return 0, nil
}

// LoadFromDirectory loads every `*.instructions.md` file in dir,
// replacing any previously loaded file instructions.
func (m *InstructionsManager) LoadFromDirectory(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, cerrors.IOError("read instructions directory", err)
	}

	m.instructionsDir = dir
	m.fileInstructions = nil

	count := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".instructions.md") {
			continue
		}
		instr, err := m.parseInstructionFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		m.fileInstructions = append(m.fileInstructions, instr)
		count++
	}

	m.rebuildCombined()
	return count, nil
}

func (m *InstructionsManager) parseInstructionFile(path string) (*Instruction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cerrors.IOError("read instruction file", err)
	}

	name := strings.TrimSuffix(filepath.Base(path), ".instructions.md")
	frontmatter, body := parseFrontmatter(string(data))

	applyTo := frontmatter["applyTo"]
	if applyTo == "" {
		applyTo = "**"
	}

	return &Instruction{
		Name:        name,
		Description: frontmatter["description"],
		ApplyTo:     applyTo,
		Content:     body,
		SourcePath:  path,
		Source:      InstructionSourceFile,
	}, nil
}

// parseFrontmatter splits a leading "---\n...\n---" YAML-ish block (plain
// key: value lines, no nesting — matching what these instruction files
// actually contain) from the body that follows.
func parseFrontmatter(content string) (map[string]string, string) {
	frontmatter := map[string]string{}
	if !strings.HasPrefix(content, "---") {
		return frontmatter, content
	}

	rest := content[3:]
	endIdx := strings.Index(rest, "---")
	if endIdx < 0 {
		return frontmatter, content
	}

	yamlBlock := rest[:endIdx]
	body := strings.TrimSpace(rest[endIdx+3:])

	for _, line := range strings.Split(yamlBlock, "\n") {
		line = strings.TrimSpace(line)
		colon := strings.Index(line, ":")
		if colon < 0 {
			continue
		}
		key := strings.TrimSpace(line[:colon])
		value := strings.TrimSpace(line[colon+1:])
		value = strings.Trim(value, `"'`)
		frontmatter[key] = value
	}

	return frontmatter, body
}

// All returns every combined instruction (user instructions first).
func (m *InstructionsManager) All() []*Instruction {
	return m.combined
}

// ForFile returns every instruction applying to filePath.
func (m *InstructionsManager) ForFile(filePath string) []*Instruction {
	var out []*Instruction
	for _, instr := range m.combined {
		if instr.AppliesTo(filePath) {
			out = append(out, instr)
		}
	}
	return out
}

// Global returns every instruction with ApplyTo == "**".
func (m *InstructionsManager) Global() []*Instruction {
	var out []*Instruction
	for _, instr := range m.combined {
		if instr.ApplyTo == "**" {
			out = append(out, instr)
		}
	}
	return out
}

const maxInstructionContentChars = 2000

// ToPromptContext formats the instructions applicable to filePath (or
// the global ones, if filePath is empty) as Markdown suitable for
// injection into an LLM prompt, user preferences first.
func (m *InstructionsManager) ToPromptContext(filePath string) string {
	var applicable []*Instruction
	if filePath != "" {
		applicable = m.ForFile(filePath)
	} else {
		applicable = m.Global()
	}
	if len(applicable) == 0 {
		return ""
	}

	var parts []string

	var userInstr []*Instruction
	var fileInstr []*Instruction
	for _, instr := range applicable {
		if instr.Source == InstructionSourceUser {
			userInstr = append(userInstr, instr)
		} else {
			fileInstr = append(fileInstr, instr)
		}
	}

	if len(userInstr) > 0 {
		parts = append(parts, "## User Preferences\n")
		for _, instr := range userInstr {
			parts = append(parts, "**"+instr.Name+"**: "+instr.Content+"\n")
		}
		parts = append(parts, "\n")
	}

	if len(fileInstr) > 0 {
		parts = append(parts, "## Instructions\n")
		for _, instr := range fileInstr {
			parts = append(parts, "### "+instr.Name+" ("+instr.Description+")\n")
			content := instr.Content
			if runes := []rune(content); len(runes) > maxInstructionContentChars {
				content = string(runes[:maxInstructionContentChars]) + "...\n[truncated]"
			}
			parts = append(parts, content, "\n")
		}
	}

	return strings.Join(parts, "\n")
}

// GetContent returns the content of the instruction matching name exactly
// or as a substring.
func (m *InstructionsManager) GetContent(name string) (string, bool) {
	for _, instr := range m.combined {
		if instr.Name == name || strings.Contains(instr.Name, name) {
			return instr.Content, true
		}
	}
	return "", false
}

// IsLoaded reports whether any instructions are present.
func (m *InstructionsManager) IsLoaded() bool {
	return len(m.combined) > 0
}

// Count returns the number of combined instructions.
func (m *InstructionsManager) Count() int {
	return len(m.combined)
}

// Stats reports counts of loaded instructions by source.
func (m *InstructionsManager) Stats() InstructionsStats {
	return InstructionsStats{
		Total:       len(m.combined),
		FromFiles:   len(m.fileInstructions),
		FromUser:    len(m.userInstructions),
		CurrentUser: m.currentUserID,
	}
}

// Reload reloads file instructions from the previously configured
// directory, leaving user instructions untouched. A no-op if no
// directory has been loaded yet.
func (m *InstructionsManager) Reload() (int, error) {
	if m.instructionsDir == "" {
		return 0, nil
	}
	return m.LoadFromDirectory(m.instructionsDir)
}
