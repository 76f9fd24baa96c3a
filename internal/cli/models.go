package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eshaffer321/contribution-reconciler/internal/application/service"
	"github.com/eshaffer321/contribution-reconciler/internal/domain/extraction"
	"github.com/eshaffer321/contribution-reconciler/internal/domain/models"
)

func newModelsCommand(global *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Manage trained file models",
	}
	cmd.AddCommand(newModelsListCommand(global), newModelsTrainCommand(global), newModelsDeleteCommand(global))
	return cmd
}

func newModelsListCommand(global *GlobalFlags) *cobra.Command {
	var owner string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List file models visible to an owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(global, func(svc *service.ReconciliationService) error {
				list := svc.Models(owner)
				if asJSON {
					return PrintJSON(cmd.OutOrStdout(), list)
				}
				PrintModels(cmd.OutOrStdout(), list)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Owner ID")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

// TrainFlags describe a column mapping built by hand
type TrainFlags struct {
	Name         string
	OwnerID      string
	LineageID    string
	Sample       string
	Delimiter    string
	DateFormat   string
	DecimalComma bool
	Global       bool
	Approve      bool
	Mapping      models.ColumnMapping
}

func newModelsTrainCommand(global *GlobalFlags) *cobra.Command {
	flags := &TrainFlags{}
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Save a file model from a sample file and a column mapping",
		Example: `  reconciler models train --name "Banco X" --sample extrato.txt --delimiter "|" \
    --date-col 1 --desc-col 2 --amount-col 3 --header-rows 1 --date-format 20060102 --approve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sample, err := describeSample(flags.Sample)
			if err != nil {
				return err
			}
			delimiter := flags.Delimiter
			if delimiter == "" {
				delimiter = sample.Delimiter
			}
			return withService(global, func(svc *service.ReconciliationService) error {
				model, err := svc.TrainModel(service.TrainRequest{
					Name:        flags.Name,
					OwnerID:     flags.OwnerID,
					LineageID:   flags.LineageID,
					Global:      flags.Global,
					Approve:     flags.Approve,
					Sample:      sample.SampleRows,
					Fingerprint: sample.Fingerprint,
					Mapping:     flags.Mapping,
					ParsingRules: models.ParsingRules{
						Delimiter:    delimiter,
						DateFormat:   flags.DateFormat,
						DecimalComma: flags.DecimalComma,
					},
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %s v%d (%s)\n", model.Name, model.Version, model.ID)
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.Name, "name", "", "Model name")
	f.StringVar(&flags.OwnerID, "owner", "", "Owner ID")
	f.StringVar(&flags.LineageID, "lineage", "", "Existing lineage to add a version to")
	f.StringVar(&flags.Sample, "sample", "", "Sample file the mapping was built from")
	f.StringVar(&flags.Delimiter, "delimiter", "", "Column delimiter of text files (detected when empty)")
	f.StringVar(&flags.DateFormat, "date-format", "", "Date layout of the date column, e.g. DD/MM/YYYY")
	f.BoolVar(&flags.DecimalComma, "decimal-comma", true, "Amounts use a decimal comma")
	f.BoolVar(&flags.Global, "global", false, "Share the model with every owner")
	f.BoolVar(&flags.Approve, "approve", false, "Mark the model approved")
	f.IntVar(&flags.Mapping.DateColumn, "date-col", 0, "Date column index")
	f.IntVar(&flags.Mapping.DescriptionColumn, "desc-col", 1, "Description column index")
	f.IntVar(&flags.Mapping.AmountColumn, "amount-col", 2, "Amount column index (-1 when split)")
	f.IntVar(&flags.Mapping.CreditColumn, "credit-col", -1, "Credit column index")
	f.IntVar(&flags.Mapping.DebitColumn, "debit-col", -1, "Debit column index")
	f.IntVar(&flags.Mapping.HeaderRows, "header-rows", 1, "Rows to skip before data")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("sample")
	return cmd
}

func newModelsDeleteCommand(global *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a file model version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(global, func(svc *service.ReconciliationService) error {
				if err := svc.DeleteModel(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func withService(global *GlobalFlags, fn func(*service.ReconciliationService) error) error {
	cfg, logger, err := global.load()
	if err != nil {
		return err
	}
	svc, closeStore, err := NewService(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()
	return fn(svc)
}

// describeSample reads a sample file and derives its layout the same way
// extraction will when the real file arrives.
func describeSample(path string) (extraction.ModelContext, error) {
	file, err := readFile(path)
	if err != nil {
		return extraction.ModelContext{}, err
	}
	if file.Text == "" && file.Rows == nil {
		return extraction.ModelContext{}, fmt.Errorf("sample %s has no readable text", path)
	}
	return extraction.Describe(extraction.Input{FileName: file.Name, Text: file.Text, Rows: file.Rows}), nil
}
