package prompt

import (
	"context"

	"github.com/charmbracelet/huh"
	"golang.org/x/text/message"

	"github.com/blackwell-systems/luciprune/internal/luci"
)

// Quit is returned by PickPackage when the operator chose to leave.
const Quit = ""

// Choice is what the operator picked in one round of the browser.
type Choice struct {
	Package          string
	Purge            bool
	RemoveDependents bool
}

// BrowseOptions configure the package browser.
type BrowseOptions struct {
	// OfferDependents shows the remove-dependents toggle.
	OfferDependents bool
	DefaultPurge    bool
	DefaultDeps     bool
	// Label renders an option label for a package.
	Label func(luci.Package) string
}

// AskFilter asks for a name filter, pre-filled with current.
func AskFilter(ctx context.Context, p *message.Printer, current string) (string, error) {
	query := current
	err := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title(p.Sprintf("Uninstall Packages")).
			Description(p.Sprintf("Select installed packages to uninstall.")).
			Placeholder(p.Sprintf("Filter package names…")).
			Value(&query),
	)).RunWithContext(ctx)
	if err != nil {
		return current, err
	}
	return query, nil
}

// PickPackage asks the operator to pick one package from pkgs and the
// removal toggles. Choice.Package is Quit when the operator left.
func PickPackage(ctx context.Context, p *message.Printer, pkgs luci.Snapshot, opts BrowseOptions) (Choice, error) {
	label := opts.Label
	if label == nil {
		label = func(pkg luci.Package) string {
			if pkg.Version == "" {
				return pkg.Name
			}
			return pkg.Name + "  " + pkg.Version
		}
	}

	options := make([]huh.Option[string], 0, len(pkgs)+1)
	for _, pkg := range pkgs {
		options = append(options, huh.NewOption(label(pkg), pkg.Name))
	}
	options = append(options, huh.NewOption(p.Sprintf("Quit"), Quit))

	choice := Choice{Purge: opts.DefaultPurge, RemoveDependents: opts.DefaultDeps}
	if err := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title(p.Sprintf("Select a package to uninstall")).
			Options(options...).
			Value(&choice.Package),
	)).RunWithContext(ctx); err != nil {
		return Choice{}, err
	}
	if choice.Package == Quit {
		return Choice{}, nil
	}

	fields := []huh.Field{
		huh.NewConfirm().
			Title(p.Sprintf("Remove configuration files")).
			Affirmative(p.Sprintf("Yes")).
			Negative(p.Sprintf("No")).
			Value(&choice.Purge),
	}
	if opts.OfferDependents {
		fields = append(fields, huh.NewConfirm().
			Title(p.Sprintf("Remove dependent packages")).
			Affirmative(p.Sprintf("Yes")).
			Negative(p.Sprintf("No")).
			Value(&choice.RemoveDependents))
	} else {
		choice.RemoveDependents = false
	}

	if err := huh.NewForm(huh.NewGroup(fields...)).RunWithContext(ctx); err != nil {
		return Choice{}, err
	}
	return choice, nil
}
