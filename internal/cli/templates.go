package cli

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	pmerrors "pmat/internal/errors"
	"pmat/internal/report"
	"pmat/internal/service"
	"pmat/internal/templates"
)

func newGenerateCmd(app *App) *cobra.Command {
	var (
		params     []string
		output     string
		createDirs bool
		format     string
	)
	cmd := &cobra.Command{
		Use:   "generate <category> <toolchain/variant>",
		Short: "Render one template",
		Long: `Render the template template://<category>/<toolchain/variant>.
Parameters are given as -p key=value; values are typed automatically.
Without --output the rendered content is printed.`,
		Example: "  pmat generate makefile rust/cli -p project_name=demo",
		Aliases: []string{"gen"},
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format, formatRaw, formatJSON); err != nil {
				return err
			}
			p, err := parseParams(params)
			if err != nil {
				return err
			}
			req := service.GenerateRequest{
				TemplateURI: templates.URIScheme + args[0] + "/" + args[1],
				Parameters:  p,
			}
			resp, err := app.call(cmd.Context(), http.MethodPost, service.PathGenerate, req)
			if err != nil {
				return err
			}
			if format == formatJSON {
				return writeOutput(cmd.OutOrStdout(), output, resp.Body)
			}
			var g templates.Generated
			if err := decodeResponse(resp, &g); err != nil {
				return err
			}
			if output == "" {
				_, err := fmt.Fprint(cmd.OutOrStdout(), g.Content)
				return err
			}
			if err := writeFile(output, []byte(g.Content), createDirs); err != nil {
				return err
			}
			app.logger.Info("template written", "path", output, "checksum", g.Checksum)
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Template parameter key=value (repeatable)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	cmd.Flags().BoolVar(&createDirs, "create-dirs", false, "Create missing parent directories of --output")
	cmd.Flags().StringVar(&format, "format", formatRaw, "Output format: raw or json")
	return cmd
}

func newScaffoldCmd(app *App) *cobra.Command {
	var (
		names  []string
		params []string
		dir    string
		format string
	)
	cmd := &cobra.Command{
		Use:     "scaffold <toolchain>",
		Short:   "Render a set of templates for one toolchain",
		Example: "  pmat scaffold rust --templates makefile,readme -p project_name=demo",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format, formatJSON, formatTable); err != nil {
				return err
			}
			p, err := parseParams(params)
			if err != nil {
				return err
			}
			req := service.ScaffoldRequest{Toolchain: args[0], Templates: names, Parameters: p}
			resp, err := app.call(cmd.Context(), http.MethodPost, service.PathScaffold, req)
			if err != nil {
				return err
			}
			var res templates.ScaffoldResult
			if err := decodeResponse(resp, &res); err != nil {
				return err
			}
			if dir != "" {
				for i := range res.Files {
					path, err := templates.Write(dir, &res.Files[i], true)
					if err != nil {
						return err
					}
					app.logger.Info("template written", "path", path)
				}
			}
			if format == formatJSON {
				return writeBody(cmd.OutOrStdout(), resp)
			}
			t := &report.Table{Headers: []string{"File", "Bytes", "Checksum"}}
			for _, f := range res.Files {
				t.Add(f.Filename, len(f.Content), f.Checksum[:12])
			}
			for _, e := range res.Errors {
				t.Add(e.Template, "-", "error: "+e.Error)
			}
			return t.WriteText(cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringSliceVar(&names, "templates", nil, "Categories to render, e.g. makefile,readme,gitignore (default: all)")
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Template parameter key=value (repeatable)")
	cmd.Flags().StringVarP(&dir, "output-dir", "o", "", "Write the rendered files below this directory")
	cmd.Flags().StringVar(&format, "format", formatTable, "Output format: table or json")
	return cmd
}

func newListCmd(app *App) *cobra.Command {
	var toolchain, category, format string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format, formatJSON, formatYAML, formatTable); err != nil {
				return err
			}
			q := url.Values{}
			if toolchain != "" {
				q.Set("toolchain", toolchain)
			}
			if category != "" {
				q.Set("category", category)
			}
			path := service.PathTemplates
			if len(q) > 0 {
				path += "?" + q.Encode()
			}
			resp, err := app.call(cmd.Context(), http.MethodGet, path, nil)
			if err != nil {
				return err
			}
			if format == formatJSON {
				return writeBody(cmd.OutOrStdout(), resp)
			}
			var list service.TemplateList
			if err := decodeResponse(resp, &list); err != nil {
				return err
			}
			if format == formatYAML {
				return writeYAML(cmd.OutOrStdout(), list)
			}
			t := &report.Table{Headers: []string{"URI", "Name", "Required"}}
			for _, tpl := range list.Templates {
				t.Add(tpl.URI, tpl.Name, strings.Join(required(tpl), ","))
			}
			return t.WriteText(cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&toolchain, "toolchain", "", "Only this toolchain: rust, deno or python-uv")
	cmd.Flags().StringVar(&category, "category", "", "Only this category: makefile, readme or gitignore")
	cmd.Flags().StringVar(&format, "format", formatTable, "Output format: table, json or yaml")
	return cmd
}

func required(t templates.Template) []string {
	var out []string
	for _, p := range t.Parameters {
		if p.Required {
			out = append(out, p.Name)
		}
	}
	return out
}

func newSearchCmd(app *App) *cobra.Command {
	var (
		toolchain string
		limit     int
		format    string
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Fuzzy search template names and descriptions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format, formatJSON, formatTable); err != nil {
				return err
			}
			q := url.Values{"q": {args[0]}}
			if toolchain != "" {
				q.Set("toolchain", toolchain)
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			resp, err := app.call(cmd.Context(), http.MethodGet, service.PathSearch+"?"+q.Encode(), nil)
			if err != nil {
				return err
			}
			if format == formatJSON {
				return writeBody(cmd.OutOrStdout(), resp)
			}
			var res service.SearchResults
			if err := decodeResponse(resp, &res); err != nil {
				return err
			}
			t := &report.Table{Headers: []string{"URI", "Relevance", "Matches"}, Align: []report.Align{report.AlignLeft, report.AlignRight}}
			for _, r := range res.Results {
				t.Add(r.Template.URI, r.Relevance, strings.Join(r.Matches, ","))
			}
			return t.WriteText(cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&toolchain, "toolchain", "", "Restrict to a toolchain")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum results")
	cmd.Flags().StringVar(&format, "format", formatTable, "Output format: table or json")
	return cmd
}

func newValidateCmd(app *App) *cobra.Command {
	var (
		params []string
		format string
	)
	cmd := &cobra.Command{
		Use:     "validate <uri>",
		Short:   "Check parameters against a template without rendering",
		Example: "  pmat validate template://makefile/rust/cli -p project_name=demo",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format, formatJSON, formatTable); err != nil {
				return err
			}
			p, err := parseParams(params)
			if err != nil {
				return err
			}
			resp, err := app.call(cmd.Context(), http.MethodPost, service.PathValidate, service.GenerateRequest{TemplateURI: args[0], Parameters: p})
			if err != nil {
				return err
			}
			var res templates.ValidationResult
			if err := decodeResponse(resp, &res); err != nil {
				return err
			}
			if format == formatJSON {
				err = writeBody(cmd.OutOrStdout(), resp)
			} else {
				err = validationText(cmd, args[0], res)
			}
			if err != nil {
				return err
			}
			if !res.Valid {
				return &resultError{code: pmerrors.ExitInvalidInput, msg: fmt.Sprintf("%d parameter problem(s)", len(res.Errors))}
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Template parameter key=value (repeatable)")
	cmd.Flags().StringVar(&format, "format", formatTable, "Output format: table or json")
	return cmd
}

func validationText(cmd *cobra.Command, uri string, res templates.ValidationResult) error {
	w := cmd.OutOrStdout()
	if res.Valid {
		_, err := fmt.Fprintf(w, "%s: valid\n", uri)
		return err
	}
	t := &report.Table{Headers: []string{"Parameter", "Problem"}}
	for _, p := range res.Errors {
		t.Add(p.Field, p.Message)
	}
	return t.WriteText(w)
}
