// Command datamanager loads the imaging datasets, splits their subjects and
// compiles feature containers.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Noofbiz/mriData/datasets"
	"github.com/Noofbiz/mriData/manager"
)

// EnvPrefix prefixes environment variables overriding params, e.g.
// MRIDATA_DATABASE_NAME.
const EnvPrefix = "MRIDATA"

type rootFlags struct {
	root      string
	outputDir string
	train     float64
	valid     float64
	seed      int64
	log       logFlags
}

var (
	flags = rootFlags{}

	rootCmd = &cobra.Command{
		Use:           "datamanager",
		Short:         "Aggregate, split and compile MRI datasets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.root, "root", "data", "directory holding the ADNI, 1512427 and BRATS datasets")
	pf.StringVar(&flags.outputDir, "output-dir", manager.DefaultOutputDir, "directory containers are written to")
	pf.Float64Var(&flags.train, "train", 0.6, "fraction of subjects in the train split")
	pf.Float64Var(&flags.valid, "valid", 0.2, "fraction of subjects in the validation split")
	pf.Int64Var(&flags.seed, "seed", 0, "seed for a reproducible split (random when unset)")
	flags.log.register(pf)

	rootCmd.AddCommand(compileCmd(), splitCmd(), keysCmd(), viewCmd(), inspectCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if datasets.IsConfigError(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// splitOptions builds the split options from the persistent flags.
func splitOptions(cmd *cobra.Command) manager.SplitOptions {
	opts := manager.SplitOptions{Train: flags.train, Valid: flags.valid}
	if cmd.Flags().Changed("seed") {
		opts = opts.Seeded(flags.seed)
	}
	return opts
}

// newManager builds a manager over the default registry and loads kind.
func newManager(cmd *cobra.Command, log *zap.Logger, kind datasets.Kind) (*manager.Manager, error) {
	m := manager.New(datasets.DefaultRegistry(flags.root),
		manager.WithLogger(log),
		manager.WithOutputDir(flags.outputDir),
		manager.WithSplitOptions(splitOptions(cmd)))
	if err := m.AddDatasets(kind); err != nil {
		return nil, err
	}
	return m, nil
}

// datasetFlag registers --dataset on cmd and returns a parser for it.
func datasetFlag(cmd *cobra.Command, required bool) func() (datasets.Kind, error) {
	var name string
	cmd.Flags().StringVar(&name, "dataset", "", "dataset to use: ADNI, FigShare or BRATS")
	if required {
		_ = cmd.MarkFlagRequired("dataset")
	}
	return func() (datasets.Kind, error) { return datasets.ParseKind(name) }
}

// newViper returns a viper instance reading MRIDATA_ prefixed environment
// variables and, when path is set, the params file at path.
func newViper(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	for _, key := range []string{manager.DatasetParam, manager.DatabaseNameParam, manager.MaxSubjectsParam} {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read params %s: %w", path, err)
		}
	}
	return v, nil
}
