package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"slices"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	"golang.org/x/term"

	"github.com/illarion/ksv/internal/vault"
)

// MaxImportCopies bounds the "(imported N)" suffixes tried when keeping both items
const MaxImportCopies = 100

// MergeStrategy defines how to handle item conflicts during import
type MergeStrategy int

const (
	StrategyAsk         MergeStrategy = iota // Ask user for each conflict
	StrategyKeepLocal                        // Always keep the stored item
	StrategyUseImported                      // Always replace with the imported item
	StrategyKeepBoth                         // Keep both, renaming the imported item
	StrategyAbort                            // Abort on any conflict
)

// ConflictResolution is the choice made for one conflicting item
type ConflictResolution int

const (
	ResolutionKeepLocal ConflictResolution = iota
	ResolutionUseImported
	ResolutionEditMerged
	ResolutionKeepBoth
	ResolutionSkip
)

// ConflictResult contains the resolution and optionally the merged item
type ConflictResult struct {
	Resolution ConflictResolution
	Merged     *vault.Item // set when Resolution == ResolutionEditMerged
}

// ImportResult lists item names by outcome
type ImportResult struct {
	Added     []string
	Replaced  []string
	Renamed   []string // new names of imported items kept alongside local ones
	Unchanged []string
	Skipped   []string
	Templates int // templates added from the import
}

// Import merges the plaintext vault at exportPath into the stored vault.
// Items absent locally are added; items whose names collide are resolved
// by strategy. The stored vault is only rewritten when the whole import
// succeeds.
func (k *Keeper) Import(ctx context.Context, password []byte, exportPath string, strategy MergeStrategy) (*ImportResult, error) {
	_, data, err := k.readExport(exportPath)
	if err != nil {
		return nil, err
	}
	incoming, err := vault.Load(data)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}
	err = k.Update(ctx, password, func(v *vault.Vault) error {
		for i := range incoming.Items {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := mergeItem(v, incoming.Items[i], strategy, result); err != nil {
				return err
			}
		}
		result.Templates = mergeTemplates(v, incoming)
		return nil
	})
	if err != nil {
		return nil, err
	}
	k.log.Debug().
		Int("added", len(result.Added)).
		Int("replaced", len(result.Replaced)).
		Int("renamed", len(result.Renamed)).
		Int("skipped", len(result.Skipped)).
		Msg("imported vault")
	return result, nil
}

// conflicting returns the first stored item sharing any name with item
func conflicting(v *vault.Vault, item *vault.Item) *vault.Item {
	for _, name := range item.Names() {
		if local, err := v.Item(name); err == nil {
			return local
		}
	}
	return nil
}

func mergeItem(v *vault.Vault, imported vault.Item, strategy MergeStrategy, result *ImportResult) error {
	local := conflicting(v, &imported)
	if local == nil {
		if err := v.AddItem(imported); err != nil {
			return err
		}
		result.Added = append(result.Added, imported.Name)
		return nil
	}

	if CompareItems(local, &imported) {
		result.Unchanged = append(result.Unchanged, local.Name)
		return nil
	}

	res, err := HandleConflict(local, &imported, strategy)
	if err != nil {
		return err
	}

	switch res.Resolution {
	case ResolutionUseImported:
		if err := replaceItem(v, local.Name, imported); err != nil {
			return err
		}
		result.Replaced = append(result.Replaced, imported.Name)
	case ResolutionEditMerged:
		if err := replaceItem(v, local.Name, *res.Merged); err != nil {
			return err
		}
		result.Replaced = append(result.Replaced, res.Merged.Name)
	case ResolutionKeepBoth:
		renamed, err := keepBoth(v, imported)
		if err != nil {
			return err
		}
		result.Renamed = append(result.Renamed, renamed)
	default:
		result.Skipped = append(result.Skipped, imported.Name)
	}
	return nil
}

// replaceItem swaps the stored item named localName for item, restoring
// the original list when item collides with some other stored item.
func replaceItem(v *vault.Vault, localName string, item vault.Item) error {
	saved := slices.Clone(v.Items)
	if err := v.RemoveItem(localName); err != nil {
		return err
	}
	if err := v.AddItem(item); err != nil {
		v.Items = saved
		return err
	}
	return nil
}

// keepBoth adds item under a free "<name> (imported N)" name, dropping
// alternative names that are already taken.
func keepBoth(v *vault.Vault, item vault.Item) (string, error) {
	alts := make([]string, 0, len(item.AlternativeNames))
	for _, alt := range item.AlternativeNames {
		if _, err := v.Item(alt); err != nil {
			alts = append(alts, alt)
		}
	}
	item.AlternativeNames = alts

	base := item.Name
	for n := 1; n <= MaxImportCopies; n++ {
		name := base + " (imported)"
		if n > 1 {
			name = fmt.Sprintf("%s (imported %d)", base, n)
		}
		if _, err := v.Item(name); err == nil {
			continue
		}
		item.Name = name
		if err := v.AddItem(item); err != nil {
			return "", err
		}
		return name, nil
	}
	return "", fmt.Errorf("too many imported copies of %q", base)
}

// mergeTemplates adds imported templates whose names are not taken.
// Stored templates always win.
func mergeTemplates(v *vault.Vault, incoming *vault.Vault) int {
	added := 0
	for _, t := range incoming.ClassTemplates {
		if v.AddClassTemplate(t) == nil {
			added++
		}
	}
	for _, t := range incoming.GeneratorTemplates {
		if v.AddGeneratorTemplate(t) == nil {
			added++
		}
	}
	for _, t := range incoming.FieldTemplates {
		if v.AddFieldTemplate(t) == nil {
			added++
		}
	}
	return added
}

func itemJSON(item *vault.Item) []byte {
	data, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		return nil
	}
	return append(data, '\n')
}

// CompareItems reports whether two items serialize identically
func CompareItems(a, b *vault.Item) bool {
	return bytes.Equal(itemJSON(a), itemJSON(b))
}

// HandleConflict resolves one conflicting item, prompting when strategy is StrategyAsk
func HandleConflict(local, imported *vault.Item, strategy MergeStrategy) (*ConflictResult, error) {
	switch strategy {
	case StrategyKeepLocal:
		return &ConflictResult{Resolution: ResolutionKeepLocal}, nil
	case StrategyUseImported:
		return &ConflictResult{Resolution: ResolutionUseImported}, nil
	case StrategyKeepBoth:
		return &ConflictResult{Resolution: ResolutionKeepBoth}, nil
	case StrategyAbort:
		return &ConflictResult{Resolution: ResolutionSkip}, fmt.Errorf("conflict detected for item %s (aborting)", local.Name)
	}

	localData, importedData := itemJSON(local), itemJSON(imported)
	fmt.Printf("\nwarning: conflict detected: %s\n", local.Name)
	fmt.Printf("   Stored item differs from the imported one\n")
	if diff, err := GenerateUnifiedDiff(local.Name, localData, importedData); err == nil {
		fmt.Print(diff)
	}
	fmt.Printf("\nOptions:\n")
	fmt.Printf("  [l] Keep stored item\n")
	fmt.Printf("  [i] Use imported item\n")
	fmt.Printf("  [e] Edit merged (opens in $EDITOR)\n")
	fmt.Printf("  [b] Keep both (imported item is renamed)\n")
	fmt.Printf("  [x] Skip this item\n")

	for {
		fmt.Printf("\nYour choice: ")
		choice, err := readChoice()
		if err != nil {
			return &ConflictResult{Resolution: ResolutionSkip}, err
		}

		switch choice {
		case "l":
			return &ConflictResult{Resolution: ResolutionKeepLocal}, nil
		case "i":
			return &ConflictResult{Resolution: ResolutionUseImported}, nil
		case "e":
			merged, err := handleEditMerge(local.Name, localData, importedData)
			if err != nil {
				fmt.Printf("Error during merge: %v\n", err)
				continue
			}
			return &ConflictResult{Resolution: ResolutionEditMerged, Merged: merged}, nil
		case "b":
			return &ConflictResult{Resolution: ResolutionKeepBoth}, nil
		case "x":
			return &ConflictResult{Resolution: ResolutionSkip}, nil
		default:
			fmt.Printf("Invalid choice. Please enter l, i, e, b, x\n")
		}
	}
}

// readChoice reads a single character choice from the terminal
func readChoice() (string, error) {
	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		// Not a terminal: read a line instead
		var input string
		if _, err := fmt.Scanln(&input); err != nil {
			return "", err
		}
		return strings.ToLower(strings.TrimSpace(input)), nil
	}
	defer func() { _ = term.Restore(int(os.Stdin.Fd()), oldState) }()

	buf := make([]byte, 1)
	if _, err := os.Stdin.Read(buf); err != nil {
		return "", err
	}

	choice := strings.ToLower(string(buf[0]))
	fmt.Printf("%s\n", choice)
	return choice, nil
}

// getEditor returns $VISUAL, then $EDITOR, then a platform default
func getEditor() string {
	if editor := os.Getenv("VISUAL"); editor != "" {
		return editor
	}
	if editor := os.Getenv("EDITOR"); editor != "" {
		return editor
	}
	if runtime.GOOS == "windows" {
		return "notepad"
	}
	return "vi"
}

// createLineDiff wraps only the differing line runs in git-style conflict markers
func createLineDiff(localData, importedData []byte) []byte {
	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(string(localData), string(importedData))
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)
	return buildConflictFromDiffs(diffs)
}

// buildConflictFromDiffs passes equal runs through and turns each
// delete/insert run into one conflict hunk.
func buildConflictFromDiffs(diffs []diffmatchpatch.Diff) []byte {
	var buf bytes.Buffer

	writeRun := func(i int, typ diffmatchpatch.Operation) int {
		for i < len(diffs) && diffs[i].Type == typ {
			text := diffs[i].Text
			buf.WriteString(text)
			if len(text) > 0 && text[len(text)-1] != '\n' {
				buf.WriteByte('\n')
			}
			i++
		}
		return i
	}

	for i := 0; i < len(diffs); {
		if diffs[i].Type == diffmatchpatch.DiffEqual {
			buf.WriteString(diffs[i].Text)
			i++
			continue
		}
		buf.WriteString("<<<<<<< stored\n")
		i = writeRun(i, diffmatchpatch.DiffDelete)
		buf.WriteString("=======\n")
		i = writeRun(i, diffmatchpatch.DiffInsert)
		buf.WriteString(">>>>>>> imported\n")
	}

	return buf.Bytes()
}

// createConflictFile writes the marked-up item JSON to a private temp file
func createConflictFile(localData, importedData []byte) (string, error) {
	tmpFile, err := os.CreateTemp("", "ksv-merge-*.json")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	name := tmpFile.Name()
	if err := os.Chmod(name, FilePermSecure); err != nil {
		tmpFile.Close()
		os.Remove(name)
		return "", fmt.Errorf("failed to set temp file permissions: %w", err)
	}
	if _, err := tmpFile.Write(createLineDiff(localData, importedData)); err != nil {
		tmpFile.Close()
		os.Remove(name)
		return "", fmt.Errorf("failed to write conflict content: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	return name, nil
}

// invokeEditor opens the editor on filename and waits for it to exit
func invokeEditor(filename string) error {
	editor := getEditor()
	if _, err := exec.LookPath(editor); err != nil {
		return fmt.Errorf("editor '%s' not found: %w\nPlease set VISUAL or EDITOR environment variable", editor, err)
	}

	cmd := exec.Command(editor, filename)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err := cmd.Run()
	if exitErr, ok := err.(*exec.ExitError); ok {
		return fmt.Errorf("editor exited with code %d", exitErr.ExitCode())
	}
	return err
}

// handleEditMerge lets the user edit the conflicting item JSON and parses the result
func handleEditMerge(name string, localData, importedData []byte) (*vault.Item, error) {
	tmpName, err := createConflictFile(localData, importedData)
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmpName)

	fmt.Printf("\nopening editor to merge %s...\n", name)
	if err := invokeEditor(tmpName); err != nil {
		return nil, err
	}

	merged, err := os.ReadFile(tmpName)
	if err != nil {
		return nil, fmt.Errorf("failed to read edited file: %w", err)
	}
	return parseMergedItem(merged)
}

// parseMergedItem decodes an edited item, refusing leftover conflict markers
func parseMergedItem(data []byte) (*vault.Item, error) {
	if hasConflictMarkers(data) {
		return nil, fmt.Errorf("conflict markers still present")
	}
	var item vault.Item
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("merged item is not valid JSON: %w", err)
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}
	return &item, nil
}

// hasConflictMarkers checks if content still contains unresolved conflict
// markers. Markers only count at the start of a line, so secrets holding
// the same runs of characters are left alone.
func hasConflictMarkers(data []byte) bool {
	for line := range bytes.Lines(data) {
		line = bytes.TrimRight(line, "\r\n")
		if bytes.HasPrefix(line, []byte("<<<<<<<")) ||
			bytes.HasPrefix(line, []byte(">>>>>>>")) ||
			bytes.Equal(bytes.TrimRight(line, " \t"), []byte("=======")) {
			return true
		}
	}
	return false
}

// GenerateUnifiedDiff renders a unified diff from oldData to newData with
// a/ and b/ headers for path. Identical inputs give an empty string.
func GenerateUnifiedDiff(path string, oldData, newData []byte) (string, error) {
	if bytes.Equal(oldData, newData) {
		return "", nil
	}

	dmp := diffmatchpatch.New()
	oldStr, newStr := string(oldData), string(newData)
	a, b, lineArray := dmp.DiffLinesToChars(oldStr, newStr)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	patches := dmp.PatchMake(oldStr, diffs)
	if len(patches) == 0 {
		return "", nil
	}

	var result strings.Builder
	fmt.Fprintf(&result, "--- a/%s\n", path)
	fmt.Fprintf(&result, "+++ b/%s\n", path)
	result.WriteString(dmp.PatchToText(patches))
	return result.String(), nil
}
