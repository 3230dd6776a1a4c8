// gen-docs generates reference documentation for the stencil CLI in
// Markdown, man page, YAML and reStructuredText formats.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
	"github.com/spf13/pflag"

	"github.com/schmitthub/stencil/internal/cmd/root"
	"github.com/schmitthub/stencil/internal/cmdutil"
	"github.com/schmitthub/stencil/internal/iostreams"
)

func main() {
	if err := run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// generator writes one documentation format for the whole command tree.
type generator struct {
	flag  string
	dir   string
	label string
	usage string
	gen   func(cmd *cobra.Command, dir string, website bool) error
}

var generators = []*generator{
	{
		flag: "markdown", dir: "markdown", label: "Markdown documentation", usage: "Generate Markdown documentation",
		gen: func(cmd *cobra.Command, dir string, website bool) error {
			if website {
				return doc.GenMarkdownTreeCustom(cmd, dir, jekyllFilePrepender, jekyllLinkHandler)
			}
			return doc.GenMarkdownTree(cmd, dir)
		},
	},
	{
		flag: "man-page", dir: "man", label: "man pages", usage: "Generate man pages",
		gen: func(cmd *cobra.Command, dir string, _ bool) error {
			return doc.GenManTree(cmd, &doc.GenManHeader{Title: "STENCIL", Section: "1", Source: "stencil"}, dir)
		},
	},
	{
		flag: "yaml", dir: "yaml", label: "YAML documentation", usage: "Generate YAML reference",
		gen: func(cmd *cobra.Command, dir string, _ bool) error { return doc.GenYamlTree(cmd, dir) },
	},
	{
		flag: "rst", dir: "rst", label: "reStructuredText documentation", usage: "Generate reStructuredText documentation",
		gen: func(cmd *cobra.Command, dir string, _ bool) error { return doc.GenReSTTree(cmd, dir) },
	},
}

func run(args []string) error {
	flags := pflag.NewFlagSet("gen-docs", pflag.ContinueOnError)

	var docPath string
	var website bool
	flags.StringVar(&docPath, "doc-path", "", "Output directory for generated docs (required)")
	enabled := make(map[string]*bool, len(generators))
	for _, g := range generators {
		enabled[g.flag] = flags.Bool(g.flag, false, g.usage)
	}
	flags.BoolVar(&website, "website", false, "Add Jekyll front matter (requires --markdown)")

	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n\n%s", filepath.Base(args[0]), flags.FlagUsages())
	}
	if err := flags.Parse(args[1:]); err != nil {
		return err
	}

	if docPath == "" {
		return fmt.Errorf("--doc-path is required")
	}
	var selected []*generator
	for _, g := range generators {
		if *enabled[g.flag] {
			selected = append(selected, g)
		}
	}
	if len(selected) == 0 {
		return fmt.Errorf("at least one format must be specified (--markdown, --man-page, --yaml, --rst)")
	}
	if website && !*enabled["markdown"] {
		return fmt.Errorf("--website requires --markdown")
	}

	f := &cmdutil.Factory{IOStreams: iostreams.System()}
	rootCmd := root.NewCmdRoot(f)
	rootCmd.DisableAutoGenTag = true

	for _, g := range selected {
		dir := filepath.Join(docPath, g.dir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
		if err := g.gen(rootCmd, dir, website); err != nil {
			return fmt.Errorf("generating %s: %w", g.label, err)
		}
		fmt.Fprintf(os.Stderr, "Generated %s in %s\n", g.label, dir)
	}
	return nil
}

// jekyllFilePrepender returns Jekyll front matter for a given filename.
func jekyllFilePrepender(filename string) string {
	// "stencil_templates_list.md" -> "stencil templates list"
	base := filepath.Base(filename)
	name := strings.TrimSuffix(base, ".md")
	cmdPath := strings.ReplaceAll(name, "_", " ")

	permalink := "/cli/" + strings.ReplaceAll(name, "_", "/") + "/"

	return fmt.Sprintf(`---
layout: manual
permalink: %s
title: %s
---

`, permalink, cmdPath)
}

// jekyllLinkHandler maps a generated file name ("stencil_new.md") to its permalink.
func jekyllLinkHandler(name string) string {
	return "/cli/" + strings.ReplaceAll(strings.TrimSuffix(name, ".md"), "_", "/") + "/"
}
