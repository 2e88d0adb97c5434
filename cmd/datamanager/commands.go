package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Noofbiz/mriData/container"
	"github.com/Noofbiz/mriData/manager"
)

func compileCmd() *cobra.Command {
	var (
		paramsFile   string
		databaseName string
		maxSubjects  int
		options      []string
	)
	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Extract features of every split into a container",
		Long: `Compile loads the dataset, splits its subjects and writes the extracted
features to <output-dir>/<database_name>.h5. Params come from the --params
file, MRIDATA_ environment variables and flags, in increasing priority.`,
		Args: cobra.NoArgs,
	}
	dataset := cmd.Flags().String("dataset", "", "dataset to compile: ADNI, FigShare or BRATS")
	cmd.Flags().StringVar(&paramsFile, "params", "", "YAML, JSON or TOML file of compile params")
	cmd.Flags().StringVar(&databaseName, "database-name", "", "name of the container to write")
	cmd.Flags().IntVar(&maxSubjects, "max-subjects", 0, "extract at most this many subjects per split (0 for all)")
	cmd.Flags().StringSliceVar(&options, "opt", nil, "extraction option as key=value, repeatable")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		v, err := newViper(paramsFile)
		if err != nil {
			return err
		}
		params, err := buildParams(v, options)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("dataset") {
			params[manager.DatasetParam] = *dataset
		}
		if cmd.Flags().Changed("database-name") {
			params[manager.DatabaseNameParam] = databaseName
		}
		if cmd.Flags().Changed("max-subjects") {
			params[manager.MaxSubjectsParam] = maxSubjects
		}

		kind, err := params.Kind()
		if err != nil {
			return err
		}

		log, err := flags.log.newLogger()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		m, err := newManager(cmd, log, kind)
		if err != nil {
			return err
		}
		if err := m.Compile(params); err != nil {
			return err
		}
		path, _ := m.OutputPath(params)
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	}
	return cmd
}

// buildParams merges the viper settings with key=value options.
func buildParams(v *viper.Viper, options []string) (manager.Params, error) {
	params := manager.Params(v.AllSettings())
	for _, opt := range options {
		key, value, ok := strings.Cut(opt, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("option %q is not key=value", opt)
		}
		params[strings.ToLower(key)] = parseValue(value)
	}
	return params, nil
}

// parseValue keeps the type of numeric and boolean option values.
func parseValue(s string) any {
	if i, err := cast.ToInt64E(s); err == nil && !strings.ContainsAny(s, ".eE") {
		return i
	}
	if f, err := cast.ToFloat64E(s); err == nil {
		return f
	}
	if b, err := cast.ToBoolE(s); err == nil && (strings.EqualFold(s, "true") || strings.EqualFold(s, "false")) {
		return b
	}
	return s
}

func splitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "split",
		Short: "Print the train, validation and test subjects of a dataset",
		Args:  cobra.NoArgs,
	}
	dataset := datasetFlag(cmd, true)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		kind, err := dataset()
		if err != nil {
			return err
		}
		log, err := flags.log.newLogger()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		m, err := newManager(cmd, log, kind)
		if err != nil {
			return err
		}
		splits, _ := m.Splits(kind)
		for _, name := range manager.SplitNames {
			subjects, _ := splits.Get(name)
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d): %s\n", name, len(subjects), strings.Join(subjects, " "))
		}
		return nil
	}
	return cmd
}

func keysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "List the columns of a dataset",
		Args:  cobra.NoArgs,
	}
	dataset := datasetFlag(cmd, true)
	var column string
	cmd.Flags().StringVar(&column, "column", "", "print this column's values instead")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		kind, err := dataset()
		if err != nil {
			return err
		}
		log, err := flags.log.newLogger()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		m, err := newManager(cmd, log, kind)
		if err != nil {
			return err
		}

		values, ok := m.Keys(kind)
		if column != "" {
			values, ok = m.Data(kind, column)
		}
		if !ok {
			return fmt.Errorf("%s has no column %q", kind, column)
		}
		for _, v := range values {
			fmt.Fprintln(cmd.OutOrStdout(), v)
		}
		return nil
	}
	return cmd
}

func viewCmd() *cobra.Command {
	var (
		subject string
		slice   float64
		scan    string
		out     string
	)
	cmd := &cobra.Command{
		Use:   "view",
		Short: "Render one slice of a subject to an image file",
		Args:  cobra.NoArgs,
	}
	dataset := datasetFlag(cmd, true)
	cmd.Flags().StringVar(&subject, "subject", "", "subject id")
	cmd.Flags().Float64Var(&slice, "slice", 0.5, "axial slice, a fraction in [0, 1) or an index")
	cmd.Flags().StringVar(&scan, "scan", "T1", "scan type")
	cmd.Flags().StringVar(&out, "out", "subject.png", "output image path")
	_ = cmd.MarkFlagRequired("subject")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		kind, err := dataset()
		if err != nil {
			return err
		}
		log, err := flags.log.newLogger()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		m, err := newManager(cmd, log, kind)
		if err != nil {
			return err
		}
		return m.ViewSubject(kind, subject, slice, scan, out)
	}
	return cmd
}

func inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <container>",
		Short: "List the split subjects and entries of a compiled container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			r, err := container.Open(args[0])
			if err != nil {
				return err
			}
			defer func() {
				if cerr := r.Close(); err == nil {
					err = cerr
				}
			}()

			w := cmd.OutOrStdout()
			for _, name := range manager.SplitNames {
				subjects, err := r.Strings(manager.SubjectsAttrPrefix + name)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s%s: %d subjects\n", manager.SubjectsAttrPrefix, name, len(subjects))
			}
			entries, err := r.Entries()
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Fprintln(w, e)
			}
			return nil
		},
	}
}
