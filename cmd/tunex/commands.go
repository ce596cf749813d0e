package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tunex-app/tunex/internal/config"
	"github.com/tunex-app/tunex/internal/domain"
	"github.com/tunex-app/tunex/internal/engine"
	"github.com/tunex-app/tunex/internal/logger"
	"github.com/tunex-app/tunex/internal/notify"
	"github.com/tunex-app/tunex/internal/settings"
	"github.com/tunex-app/tunex/internal/workspace"
)

var (
	createFile    string
	editFile      string
	editName      string
	editDesc      string
	generateCount int
	recordFile    string
	exportOut     string
)

func init() {
	campaignCmd := &cobra.Command{
		Use:   "campaign",
		Short: "Manage campaigns",
	}
	rootCmd.AddCommand(campaignCmd)

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a campaign from a definition file",
		RunE:  runCreate,
	}
	createCmd.Flags().StringVarP(&createFile, "file", "f", "", "campaign definition YAML")
	createCmd.MarkFlagRequired("file")
	campaignCmd.AddCommand(createCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List campaigns in the workspace",
		RunE:  runList,
	}
	campaignCmd.AddCommand(listCmd)

	showCmd := &cobra.Command{
		Use:   "show CAMPAIGN",
		Short: "Show a campaign's definition",
		Args:  cobra.ExactArgs(1),
		RunE:  runShow,
	}
	campaignCmd.AddCommand(showCmd)

	editCmd := &cobra.Command{
		Use:   "edit CAMPAIGN",
		Short: "Edit a campaign",
		Long: `Edit a campaign. --name and --description change display fields only.
--file replaces the parameter space, objectives and engine settings from a
definition file; such structural edits bump the campaign version and discard
the optimizer state.`,
		Args: cobra.ExactArgs(1),
		RunE: runEdit,
	}
	editCmd.Flags().StringVarP(&editFile, "file", "f", "", "definition YAML to take space/objectives/settings from")
	editCmd.Flags().StringVar(&editName, "name", "", "new campaign name")
	editCmd.Flags().StringVar(&editDesc, "description", "", "new campaign description")
	campaignCmd.AddCommand(editCmd)

	generateCmd := &cobra.Command{
		Use:   "generate CAMPAIGN",
		Short: "Generate the next batch of suggested experiments",
		Args:  cobra.ExactArgs(1),
		RunE:  runGenerate,
	}
	generateCmd.Flags().IntVarP(&generateCount, "count", "n", 5, "number of experiments to suggest")
	rootCmd.AddCommand(generateCmd)

	recordCmd := &cobra.Command{
		Use:   "record CAMPAIGN BATCH",
		Short: "Record measured results for a batch",
		Long: `Record measured results for a batch from a CSV file. The file needs one
column per objective and one data row per suggested experiment, in the
batch's row order. An optional row_index column is accepted and ignored.`,
		Args: cobra.ExactArgs(2),
		RunE: runRecord,
	}
	recordCmd.Flags().StringVarP(&recordFile, "file", "f", "", "results CSV")
	recordCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(recordCmd)

	historyCmd := &cobra.Command{
		Use:   "history CAMPAIGN",
		Short: "Show a campaign's batches",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistory,
	}
	rootCmd.AddCommand(historyCmd)

	exportCmd := &cobra.Command{
		Use:   "export CAMPAIGN",
		Short: "Export a campaign and its history as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runExport,
	}
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default stdout)")
	rootCmd.AddCommand(exportCmd)

	recentCmd := &cobra.Command{
		Use:   "recent",
		Short: "Show recently used workspaces and campaigns",
		RunE:  runRecent,
	}
	rootCmd.AddCommand(recentCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

// openService wires the full application stack for one command invocation.
func openService() (*workspace.Service, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	root := workspaceFlag
	if root == "" {
		root = cfg.General.WorkspaceRoot
	}
	if root == "" {
		if root, err = os.Getwd(); err != nil {
			return nil, nil, err
		}
	}

	log := logger.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	if err := os.MkdirAll(filepath.Dir(cfg.General.SettingsDBPath), 0o755); err != nil {
		return nil, nil, err
	}
	settingsStore, err := settings.Open(cfg.General.SettingsDBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening settings database: %w", err)
	}

	sinks := []notify.Notifier{notify.NewSlogNotifier(log)}
	if cfg.Notifications.Desktop {
		sinks = append(sinks, notify.NewDesktopNotifier(true))
	}
	if cfg.Notifications.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhookNotifier(cfg.Notifications.WebhookURL))
	}

	eng := engine.NewCLIEngine(cfg.Engine.Command, cfg.Engine.Args,
		time.Duration(cfg.Engine.TimeoutSeconds)*time.Second)

	svc, err := workspace.NewService(root, eng, workspace.Options{
		Notifier:             notify.NewMultiNotifier(sinks...),
		Logger:               log,
		Settings:             settingsStore,
		MaxConcurrentEngines: int64(cfg.Engine.MaxConcurrent),
		FallbackSeed:         cfg.Fallback.Seed,
	})
	if err != nil {
		settingsStore.Close()
		return nil, nil, err
	}
	cleanup := func() {
		svc.Close()
		settingsStore.Close()
	}
	return svc, cleanup, nil
}

func runCreate(cmd *cobra.Command, args []string) error {
	spec, err := loadSpecFile(createFile)
	if err != nil {
		return err
	}
	space, err := spec.space()
	if err != nil {
		return err
	}

	svc, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	c, err := svc.CreateCampaign(spec.Name, space, spec.objectives(), spec.engineSettings())
	if err != nil {
		return err
	}
	var followUp domain.Edit
	if spec.Description != "" {
		followUp.Description = &spec.Description
	}
	followUp.InitialDataset = spec.initialDataset()
	if followUp.Description != nil || followUp.InitialDataset != nil {
		if _, err := svc.EditCampaign(c.ID, followUp); err != nil {
			return err
		}
	}
	fmt.Printf("Created campaign %s (%s)\n", c.Name, c.ID)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	svc, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	campaigns, err := svc.ListCampaigns()
	if err != nil {
		return err
	}
	if len(campaigns) == 0 {
		fmt.Println("No campaigns in this workspace")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tVERSION\tPARAMETERS\tOBJECTIVES\tUPDATED")
	for _, c := range campaigns {
		fmt.Fprintf(w, "%s\t%s\tv%d\t%d\t%d\t%s\n",
			c.ID, c.Name, c.Version, len(c.Space.Parameters), len(c.Objectives),
			humanize.Time(c.UpdatedAt))
	}
	return w.Flush()
}

func runShow(cmd *cobra.Command, args []string) error {
	svc, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	c, err := svc.Campaign(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("%s (v%d)\n", c.Name, c.Version)
	if c.Description != "" {
		fmt.Printf("%s\n", c.Description)
	}
	fmt.Printf("Created %s, updated %s\n\n", humanize.Time(c.CreatedAt), humanize.Time(c.UpdatedAt))

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PARAMETER\tTYPE\tDOMAIN")
	for _, p := range c.Space.Parameters {
		fmt.Fprintf(w, "%s\t%s\t%s\n", p.Name, p.Kind, describeDomain(p))
	}
	fmt.Fprintln(w, "\nOBJECTIVE\tDIRECTION\tWEIGHT")
	for _, o := range c.Objectives {
		weight := o.Weight
		if weight == 0 {
			weight = 1
		}
		fmt.Fprintf(w, "%s\t%s\t%g\n", o.Name, o.Direction, weight)
	}
	w.Flush()
	fmt.Printf("\nEngine: %s / %s\n", c.Settings.SurrogateModel, c.Settings.AcquisitionFunction)
	return nil
}

func describeDomain(p domain.Parameter) string {
	switch p.Kind {
	case domain.KindContinuous:
		return fmt.Sprintf("[%g, %g]", p.Low, p.High)
	case domain.KindDiscreteRegular:
		return fmt.Sprintf("[%g, %g] step %g", p.Low, p.High, p.Step)
	case domain.KindDiscreteIrregular:
		return fmt.Sprintf("%v", p.Levels)
	case domain.KindCategorical:
		return fmt.Sprintf("%v", p.Categories)
	case domain.KindFixed:
		return fmt.Sprintf("= %v", p.FixedValue)
	case domain.KindSubstance:
		return fmt.Sprintf("%d structures", len(p.Smiles))
	default:
		return ""
	}
}

func runEdit(cmd *cobra.Command, args []string) error {
	var edit domain.Edit
	if editName != "" {
		edit.Name = &editName
	}
	if editDesc != "" {
		edit.Description = &editDesc
	}
	if editFile != "" {
		spec, err := loadSpecFile(editFile)
		if err != nil {
			return err
		}
		space, err := spec.space()
		if err != nil {
			return err
		}
		engineSettings := spec.engineSettings()
		edit.Space = &space
		edit.Objectives = spec.objectives()
		edit.Settings = &engineSettings
		edit.InitialDataset = spec.initialDataset()
	}

	svc, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	structural, err := svc.EditCampaign(args[0], edit)
	if err != nil {
		return err
	}
	if structural {
		c, _ := svc.Campaign(args[0])
		fmt.Printf("Campaign updated to v%d; optimizer state will be rebuilt\n", c.Version)
	} else {
		fmt.Println("Campaign updated")
	}
	return nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	svc, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	batch, err := svc.GenerateNextBatch(context.Background(), args[0], generateCount)
	if err != nil {
		return err
	}

	fmt.Printf("Batch %s (%s)\n", batch.BatchID, batch.Provenance)
	c, err := svc.Campaign(args[0])
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	header := "ROW"
	for _, name := range c.Space.Names() {
		header += "\t" + name
	}
	fmt.Fprintln(w, header)
	for i, row := range batch.Rows {
		line := strconv.Itoa(i)
		for _, name := range c.Space.Names() {
			line += fmt.Sprintf("\t%v", row[name])
		}
		fmt.Fprintln(w, line)
	}
	return w.Flush()
}

func runRecord(cmd *cobra.Command, args []string) error {
	svc, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	campaignID, batchID := args[0], args[1]
	c, err := svc.Campaign(campaignID)
	if err != nil {
		return err
	}
	measurements, err := readResultsCSV(recordFile, c.Objectives)
	if err != nil {
		return err
	}

	already, err := svc.RecordResults(campaignID, batchID, measurements)
	if err != nil {
		return err
	}
	if already {
		fmt.Printf("Batch %s already has results; nothing changed\n", batchID)
		return nil
	}
	fmt.Printf("Recorded %d results for batch %s\n", len(measurements), batchID)
	return nil
}

// readResultsCSV parses a results file into one measurement map per row.
func readResultsCSV(path string, objectives []domain.Objective) ([]map[string]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("%s has no data rows", path)
	}

	col := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		col[name] = i
	}
	for _, o := range objectives {
		if _, ok := col[o.Name]; !ok {
			return nil, fmt.Errorf("%s is missing a column for objective %q", path, o.Name)
		}
	}

	var out []map[string]float64
	for i, record := range records[1:] {
		m := make(map[string]float64, len(objectives))
		for _, o := range objectives {
			v, err := strconv.ParseFloat(record[col[o.Name]], 64)
			if err != nil {
				return nil, fmt.Errorf("row %d objective %q: %w", i, o.Name, err)
			}
			m[o.Name] = v
		}
		out = append(out, m)
	}
	return out, nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	svc, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	batches, err := svc.History(args[0])
	if err != nil {
		return err
	}
	if len(batches) == 0 {
		fmt.Println("No batches generated yet")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "BATCH\tGENERATED\tPROVENANCE\tROWS\tSTATUS")
	for _, b := range batches {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			b.BatchID, humanize.Time(b.GeneratedAt), b.Provenance, len(b.Rows), b.Status)
	}
	return w.Flush()
}

// exportDocument is the JSON shape written by the export command.
type exportDocument struct {
	Campaign json.RawMessage `json:"campaign"`
	Batches  []exportBatch   `json:"batches"`
}

type exportBatch struct {
	BatchID     string               `json:"batch_id"`
	GeneratedAt time.Time            `json:"generated_at"`
	Provenance  domain.Provenance    `json:"provenance"`
	Status      domain.BatchStatus   `json:"status"`
	Rows        []domain.Row         `json:"rows"`
	Results     []map[string]float64 `json:"results,omitempty"`
}

func runExport(cmd *cobra.Command, args []string) error {
	svc, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	c, err := svc.Campaign(args[0])
	if err != nil {
		return err
	}
	encoded, err := domain.EncodeCampaign(&c)
	if err != nil {
		return err
	}
	batches, err := svc.History(args[0])
	if err != nil {
		return err
	}

	doc := exportDocument{Campaign: encoded}
	for _, b := range batches {
		eb := exportBatch{
			BatchID:     b.BatchID,
			GeneratedAt: b.GeneratedAt,
			Provenance:  b.Provenance,
			Status:      b.Status,
			Rows:        b.Rows,
		}
		if b.Status == domain.BatchCompleted {
			results, err := svc.ResultsForBatch(args[0], b.BatchID)
			if err != nil {
				return err
			}
			eb.Results = make([]map[string]float64, len(b.Rows))
			for _, r := range results {
				if r.RowIndex < len(eb.Results) {
					eb.Results[r.RowIndex] = r.Measurements
				}
			}
		}
		doc.Batches = append(doc.Batches, eb)
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	out = append(out, '\n')
	if exportOut == "" {
		_, err = os.Stdout.Write(out)
		return err
	}
	return os.WriteFile(exportOut, out, 0o644)
}

func runRecent(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := settings.Open(cfg.General.SettingsDBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	workspaces, err := store.RecentWorkspaces()
	if err != nil {
		return err
	}
	campaigns, err := store.RecentCampaigns()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WORKSPACE\tPATH\tLAST USED")
	for _, ws := range workspaces {
		fmt.Fprintf(w, "%s\t%s\t%s\n", ws.Name, ws.Path, humanize.Time(ws.AccessedAt))
	}
	if len(campaigns) > 0 {
		fmt.Fprintln(w, "\nCAMPAIGN\tWORKSPACE\tLAST USED")
		for _, c := range campaigns {
			fmt.Fprintf(w, "%s\t%s\t%s\n", c.Name, c.WorkspacePath, humanize.Time(c.AccessedAt))
		}
	}
	return w.Flush()
}
