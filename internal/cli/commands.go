package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gmsas95/medtrack/internal/app"
	"github.com/gmsas95/medtrack/internal/batch"
	"github.com/gmsas95/medtrack/internal/config"
	apperrors "github.com/gmsas95/medtrack/internal/errors"
	"github.com/gmsas95/medtrack/internal/medication"
)

var Version = "dev"

// ErrUsage is returned when a command was called with bad arguments. The
// usage text has already been printed.
var ErrUsage = errors.New("usage error")

const dateLayout = "2006-01-02"

// Commands lists the medication subcommands handled by Runner
var Commands = []string{"add", "list", "update", "delete", "take", "miss", "adherence", "due", "stats", "report", "import"}

// IsCommand reports whether name is a medication subcommand
func IsCommand(name string) bool {
	for _, c := range Commands {
		if c == name {
			return true
		}
	}
	return false
}

// Runner executes medication subcommands against a bootstrapped App
type Runner struct {
	app   *app.App
	out   io.Writer
	style styles
}

func NewRunner(a *app.App, out io.Writer) *Runner {
	return &Runner{app: a, out: out, style: newStyles(isTerminal(out))}
}

func (r *Runner) printf(format string, args ...interface{}) {
	fmt.Fprintf(r.out, format, args...)
}

func defaultUser() string {
	return config.GetEnvDefault("MEDTRACK_USER", "default")
}

func (r *Runner) flags(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(r.out)
	user := fs.String("user", defaultUser(), "User id (env MEDTRACK_USER)")
	return fs, user
}

// Run dispatches one subcommand
func (r *Runner) Run(ctx context.Context, name string, args []string) error {
	switch name {
	case "add":
		return r.add(ctx, args)
	case "list", "ls":
		return r.list(ctx, args)
	case "update":
		return r.update(ctx, args)
	case "delete", "rm":
		return r.remove(ctx, args)
	case "take":
		return r.dose(ctx, medication.DoseTaken, args)
	case "miss":
		return r.dose(ctx, medication.DoseMissed, args)
	case "adherence":
		return r.adherence(ctx, args)
	case "due":
		return r.due(ctx, args)
	case "stats":
		return r.stats(ctx, args)
	case "report":
		return r.report(ctx, args)
	case "import":
		return r.importDoses(ctx, args)
	}
	return fmt.Errorf("unknown command %q", name)
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return ErrUsage
	}
	return nil
}

func required(fs *flag.FlagSet, values map[string]string) error {
	var missing []string
	for name, v := range values {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, "--"+name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return apperrors.Malformed("%s: missing %s", fs.Name(), strings.Join(missing, ", "))
}

func (r *Runner) add(ctx context.Context, args []string) error {
	fs, user := r.flags("add")
	name := fs.String("name", "", "Medication name")
	dosage := fs.String("dosage", "", "Dosage, e.g. 10mg")
	frequency := fs.String("frequency", "", "Frequency, e.g. daily, every 8 hours, weekly")
	start := fs.String("start", time.Now().Format(dateLayout), "Start date (ISO-8601)")
	end := fs.String("end", "", "End date (ISO-8601), empty for ongoing")
	notes := fs.String("notes", "", "Notes")
	if err := parse(fs, args); err != nil {
		return err
	}

	in := medication.NewMedication{Name: *name, Dosage: *dosage, Frequency: *frequency}
	var err error
	if in.StartDate, err = medication.ParseTime(*start); err != nil {
		return err
	}
	if in.EndDate, err = medication.ParseOptionalTime(*end); err != nil {
		return err
	}
	if *notes != "" {
		in.Notes = notes
	}

	med, err := r.app.Medications.AddMedication(ctx, *user, in)
	if err != nil {
		return err
	}
	r.printf("%s Added %s (%s, %s)\n", r.style.render(r.style.ok, "✓"), med.Name, med.Dosage, med.Frequency)
	r.printf("  id: %s\n", med.ID)
	return nil
}

func formatEnd(end *time.Time) string {
	if end == nil {
		return "ongoing"
	}
	return end.Format(dateLayout)
}

func (r *Runner) medicationTable(meds []medication.Medication) string {
	rows := make([][]string, 0, len(meds))
	for _, m := range meds {
		rows = append(rows, []string{
			m.ID,
			m.Name,
			m.Dosage,
			m.Frequency,
			m.StartDate.Format(dateLayout),
			formatEnd(m.EndDate),
			fmt.Sprintf("%.1f%%", m.Adherence.Rate()),
		})
	}
	return r.style.table([]string{"ID", "Name", "Dosage", "Frequency", "Start", "End", "Adherence"}, rows)
}

func (r *Runner) list(ctx context.Context, args []string) error {
	fs, user := r.flags("list")
	if err := parse(fs, args); err != nil {
		return err
	}

	meds := r.app.Medications.UserMedications(ctx, *user)
	if len(meds) == 0 {
		r.printf("No medications for %s. Add one with: medtrack add --name <name> --dosage <dosage> --frequency <frequency>\n", *user)
		return nil
	}
	r.printf("%s\n", r.style.render(r.style.title, fmt.Sprintf("Medications for %s", *user)))
	r.printf("%s\n", r.medicationTable(meds))
	return nil
}

func (r *Runner) update(ctx context.Context, args []string) error {
	fs, user := r.flags("update")
	id := fs.String("id", "", "Medication id")
	name := fs.String("name", "", "New name")
	dosage := fs.String("dosage", "", "New dosage")
	frequency := fs.String("frequency", "", "New frequency")
	start := fs.String("start", "", "New start date")
	end := fs.String("end", "", "New end date")
	notes := fs.String("notes", "", "New notes")
	clearEnd := fs.Bool("clear-end", false, "Make the medication ongoing")
	clearNotes := fs.Bool("clear-notes", false, "Remove notes")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(fs, map[string]string{"id": *id}); err != nil {
		return err
	}

	// Only flags given on the command line become part of the update.
	var u medication.Update
	var parseErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			u.Name = name
		case "dosage":
			u.Dosage = dosage
		case "frequency":
			u.Frequency = frequency
		case "notes":
			u.Notes = notes
		case "start":
			t, err := medication.ParseTime(*start)
			if err != nil {
				parseErr = err
				return
			}
			u.StartDate = &t
		case "end":
			t, err := medication.ParseOptionalTime(*end)
			if err != nil {
				parseErr = err
				return
			}
			u.EndDate = t
			u.ClearEndDate = t == nil
		}
	})
	if parseErr != nil {
		return parseErr
	}
	u.ClearEndDate = u.ClearEndDate || *clearEnd
	u.ClearNotes = *clearNotes
	if u.Empty() {
		return apperrors.Malformed("update: nothing to change")
	}

	med, err := r.app.Medications.UpdateMedication(ctx, *user, *id, u)
	if err != nil {
		return err
	}
	r.printf("%s Updated %s\n", r.style.render(r.style.ok, "✓"), med.Name)
	return nil
}

func (r *Runner) remove(ctx context.Context, args []string) error {
	fs, user := r.flags("delete")
	id := fs.String("id", "", "Medication id")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(fs, map[string]string{"id": *id}); err != nil {
		return err
	}

	ok, err := r.app.Medications.DeleteMedication(ctx, *user, *id)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.ErrMedicationNotFound
	}
	r.printf("%s Deleted %s\n", r.style.render(r.style.ok, "✓"), *id)
	return nil
}

func (r *Runner) dose(ctx context.Context, status medication.DoseStatus, args []string) error {
	fs, user := r.flags(map[medication.DoseStatus]string{medication.DoseTaken: "take", medication.DoseMissed: "miss"}[status])
	id := fs.String("id", "", "Medication id")
	at := fs.String("at", "", "Dose time (ISO-8601), default now")
	slot := fs.String("slot", "", "Dose slot id; a repeated slot is recorded once")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(fs, map[string]string{"id": *id}); err != nil {
		return err
	}

	in := medication.DoseInput{Status: status, SlotID: *slot}
	if *at != "" {
		t, err := medication.ParseTime(*at)
		if err != nil {
			return err
		}
		in.At = t
	}

	ok, err := r.app.Medications.RecordDose(ctx, *user, *id, in)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.ErrMedicationNotFound
	}

	med, _ := r.app.Medications.GetMedication(ctx, *user, *id)
	mark := r.style.render(r.style.ok, "✓")
	if status == medication.DoseMissed {
		mark = r.style.render(r.style.bad, "✗")
	}
	r.printf("%s Recorded %s dose", mark, status)
	if med != nil {
		r.printf(" for %s (adherence %.1f%%)", med.Name, med.Adherence.Rate())
	}
	r.printf("\n")
	return nil
}

func (r *Runner) adherence(ctx context.Context, args []string) error {
	fs, user := r.flags("adherence")
	id := fs.String("id", "", "Medication id; empty for the overall rate")
	if err := parse(fs, args); err != nil {
		return err
	}

	if *id == "" {
		rate := r.app.Engine.AdherenceRate(ctx, *user, "")
		r.printf("Overall adherence for %s: %s\n", *user, r.style.rate(rate, fmt.Sprintf("%.1f%%", rate)))
		return nil
	}

	rate, err := r.app.Engine.LookupRate(ctx, *user, *id)
	if err != nil {
		return err
	}
	r.printf("Adherence for %s: %s\n", *id, r.style.rate(rate, fmt.Sprintf("%.1f%%", rate)))
	return nil
}

func (r *Runner) due(ctx context.Context, args []string) error {
	fs, user := r.flags("due")
	hours := fs.Int("hours", r.app.Config.Adherence.DefaultWindowHours, "Look-ahead window in hours")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *hours < 0 {
		return apperrors.Malformed("due: --hours must not be negative")
	}

	due := r.app.Engine.DueMedications(ctx, *user, *hours)
	if len(due) == 0 {
		r.printf("Nothing due in the next %dh\n", *hours)
		return nil
	}
	r.printf("%s\n", r.style.render(r.style.title, fmt.Sprintf("Due in the next %dh", *hours)))
	r.printf("%s\n", r.medicationTable(due))
	return nil
}

func (r *Runner) stats(ctx context.Context, args []string) error {
	fs, user := r.flags("stats")
	if err := parse(fs, args); err != nil {
		return err
	}

	st := r.app.Engine.Stats(ctx, *user)
	r.printf("%s\n", r.style.render(r.style.title, "Adherence Statistics"))
	r.printf("  Medications: %d (%d active)\n", st.TotalMedications, st.ActiveMedications)
	r.printf("  Doses:       %d recorded, %d taken, %d missed\n", st.TotalDoses, st.TakenDoses, st.MissedDoses)
	r.printf("  Today:       %d taken, %d missed\n", st.TakenToday, st.MissedToday)
	r.printf("  Overall:     %s\n", r.style.rate(st.OverallRate, fmt.Sprintf("%.1f%%", st.OverallRate)))
	if st.TotalDoses == 0 {
		r.printf("  %s\n", r.style.render(r.style.muted, "No doses recorded yet; 100% means no data."))
	}
	return nil
}

func (r *Runner) report(ctx context.Context, args []string) error {
	fs, user := r.flags("report")
	out := fs.String("out", "", "Output file (default adherence-<user>.pdf)")
	if err := parse(fs, args); err != nil {
		return err
	}
	path := *out
	if path == "" {
		path = fmt.Sprintf("adherence-%s.pdf", *user)
	}

	data, err := r.app.Engine.BuildReport(ctx, *user)
	if err != nil {
		r.app.Metrics.RecordReport("no_data")
		return err
	}
	pdf, err := r.app.Reports.RenderBytes(data)
	if err != nil {
		r.app.Metrics.RecordReport("error")
		return err
	}
	if err := os.WriteFile(path, pdf, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	r.app.Metrics.RecordReport("ok")

	r.printf("%s Report written to %s (%d bytes)\n", r.style.render(r.style.ok, "✓"), path, len(pdf))
	return nil
}

func (r *Runner) importDoses(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(r.out)
	file := fs.String("file", "", "JSON array or JSON lines file of dose records")
	workers := fs.Int("concurrency", batch.DefaultConfig().MaxConcurrency, "Users processed in parallel")
	strict := fs.Bool("strict", false, "Count invalid records as failures instead of skipping them")
	report := fs.String("report", "", "Write the per-record result as JSON to this file")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(fs, map[string]string{"file": *file}); err != nil {
		return err
	}

	p := batch.NewProcessor(r.app.Medications, batch.Config{
		MaxConcurrency: *workers,
		SkipInvalid:    !*strict,
	}, r.app.Logger)
	result, err := p.ProcessFile(ctx, *file)
	if err != nil {
		return err
	}

	r.printf("%s", result.Summary())
	for _, item := range result.Items {
		if item.Error != "" {
			r.printf("  %s #%d %s/%s: %s\n", r.style.render(r.style.bad, "✗"), item.Index+1, item.UserID, item.MedicationID, item.Error)
		}
	}

	if *report != "" {
		data, err := result.ToJSON()
		if err != nil {
			return err
		}
		if err := os.WriteFile(*report, []byte(data), 0644); err != nil {
			return fmt.Errorf("failed to write import report: %w", err)
		}
	}
	if result.Failed > 0 {
		return fmt.Errorf("%d of %d dose records failed", result.Failed, result.Total)
	}
	return nil
}
