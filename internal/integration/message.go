package integration

import (
	"fmt"
	"strings"

	"github.com/xycareh/gitbutler/internal/gitadapter"
	"github.com/xycareh/gitbutler/internal/vbranch"
)

const (
	integrationCommitTitle = "GitButler Integration Commit"
	docsLink               = "For more information about what we're doing here, check out our docs:\nhttps://docs.gitbutler.com/features/virtual-branches/integration-branch"
)

var explanatoryParagraphs = []string{
	"Your virtual branches have been merged into a single integration " +
		"branch. This branch is only used for display purposes and is " +
		"never pushed anywhere; it gets rebuilt from scratch every time " +
		"the workspace changes.",
	"Switching to another branch will require reinitializing the " +
		"virtual branches from that branch's state. Any commit made " +
		"directly on this branch, rather than through a virtual branch, " +
		"is discarded the next time the workspace is recalculated.",
}

// buildMessage composes the integration commit message: a title, the fixed
// explanatory paragraphs, a bulleted list of applied branches, and (if
// recorded) the previous-branch sidecar lines, ending in a docs link.
func buildMessage(a gitadapter.Adapter, target vbranch.Target, branches []vbranch.Branch) (string, error) {
	var b strings.Builder

	b.WriteString(integrationCommitTitle)
	b.WriteString("\n\n")
	for _, p := range explanatoryParagraphs {
		b.WriteString(p)
		b.WriteString("\n\n")
	}

	b.WriteString("Here are the branches that are currently applied:\n")
	for _, branch := range branches {
		if !branch.Applied {
			continue
		}
		b.WriteString(fmt.Sprintf(" - %s (%s)\n", branch.Name, HiddenRefName(branch.Name)))
		if branch.Head != target.SHA {
			b.WriteString(fmt.Sprintf("   branch head: %s\n", branch.Head))
		}
		for _, claim := range branch.Ownership {
			b.WriteString(fmt.Sprintf("   - %s\n", claim.FilePath))
		}
	}

	sidecar, err := readSidecar(a.GitDir())
	if err != nil && err != ErrCorruptSidecar {
		return "", err
	}
	if sidecar != nil {
		b.WriteString(fmt.Sprintf("\nYour previous branch was: %s\n", sidecar.RefName))
		b.WriteString(fmt.Sprintf("The sha for that commit was: %s\n", sidecar.SHA))
	}

	b.WriteString("\n")
	b.WriteString(docsLink)
	b.WriteString("\n")

	return b.String(), nil
}
