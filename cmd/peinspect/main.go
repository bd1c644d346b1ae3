// Copyright 2023 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	pelite "github.com/pipizhuzhu/pelite"
	"github.com/pipizhuzhu/pelite/scan"
)

var verbose bool

func prettyPrint(v interface{}) string {
	buf, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("<marshal error: %v>", err)
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, buf, "", "\t"); err != nil {
		return string(buf)
	}
	return pretty.String()
}

func openFile(path string) (*pelite.File, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var logger *zap.Logger
	if verbose {
		logger, _ = zap.NewDevelopment()
	}

	file, err := pelite.NewBytes(data, &pelite.Options{Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	if err := file.Parse(); err != nil {
		file.Close()
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return file, nil
}

func runImports(cmd *cobra.Command, args []string) error {
	file, err := openFile(args[0])
	if err != nil {
		return err
	}
	defer file.Close()

	fmt.Println(prettyPrint(file.Imports))
	if len(file.DelayImports) > 0 {
		fmt.Println(prettyPrint(file.DelayImports))
	}
	return nil
}

func runExports(cmd *cobra.Command, args []string) error {
	file, err := openFile(args[0])
	if err != nil {
		return err
	}
	defer file.Close()

	symbol, _ := cmd.Flags().GetString("symbol")
	if symbol == "" {
		fmt.Println(prettyPrint(file.Export))
		return nil
	}

	fn, err := file.Export.By().Symbol(symbol)
	if err != nil {
		return fmt.Errorf("looking up %q: %w", symbol, err)
	}
	fmt.Println(prettyPrint(fn))
	return nil
}

func runRelocs(cmd *cobra.Command, args []string) error {
	file, err := openFile(args[0])
	if err != nil {
		return err
	}
	defer file.Close()

	it := file.RelocationBlocks()
	var rvas []uint32
	for {
		_, entries, ok := it.Next()
		if !ok {
			break
		}
		for _, e := range entries {
			rvas = append(rvas, e.RVA)
		}
	}
	if err := it.Err(); err != nil {
		return err
	}
	fmt.Println(prettyPrint(rvas))
	return nil
}

// scanPatterns holds a small set of named, built-in signatures. Compiling
// a pattern from its human-readable string syntax is a separate concern
// this CLI does not implement; these are hand-assembled the same way the
// scanner's own tests build one.
var scanPatterns = map[string]scan.Pattern{
	"rip-lea": {
		scan.Byte(0x48), scan.Byte(0x8b), scan.Skip(1), scan.Jump4(), scan.Save(0),
	},
}

func runScan(cmd *cobra.Command, args []string) error {
	patName, _ := cmd.Flags().GetString("pattern")
	pat, ok := scanPatterns[patName]
	if !ok {
		return fmt.Errorf("unknown pattern %q (known: rip-lea)", patName)
	}

	file, err := openFile(args[0])
	if err != nil {
		return err
	}
	defer file.Close()

	it := file.View().MatchesCode(pat)
	var matches []scan.Match
	for {
		m, ok := it.Next()
		if !ok {
			break
		}
		matches = append(matches, m)
	}
	fmt.Println(prettyPrint(matches))
	return nil
}

func main() {
	root := &cobra.Command{
		Use:   "peinspect",
		Short: "Inspects Portable Executable images",
		Long:  "peinspect dumps imports, exports, relocations, and pattern scans over a PE image",
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	importsCmd := &cobra.Command{
		Use:   "imports <file>",
		Short: "Dump the import and delay-import directories",
		Args:  cobra.ExactArgs(1),
		RunE:  runImports,
	}

	exportsCmd := &cobra.Command{
		Use:   "exports <file>",
		Short: "Dump the export directory, or look up one symbol",
		Args:  cobra.ExactArgs(1),
		RunE:  runExports,
	}
	exportsCmd.Flags().String("symbol", "", "look up a single exported symbol by name")

	relocsCmd := &cobra.Command{
		Use:   "relocs <file>",
		Short: "Dump the flattened base relocation RVAs",
		Args:  cobra.ExactArgs(1),
		RunE:  runRelocs,
	}

	scanCmd := &cobra.Command{
		Use:   "scan <file>",
		Short: "Run a built-in byte-signature pattern over the image's executable sections",
		Args:  cobra.ExactArgs(1),
		RunE:  runScan,
	}
	scanCmd.Flags().String("pattern", "rip-lea", "named built-in pattern to run")

	root.AddCommand(importsCmd, exportsCmd, relocsCmd, scanCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
