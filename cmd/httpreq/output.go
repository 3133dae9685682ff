package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"http-wrapper/application/binding"
	"http-wrapper/metrics"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

type printer struct {
	w      io.Writer
	format string
	// query, when set, replaces the result with one GJSON lookup on the body.
	query string
}

func (p printer) print(r binding.Result) error {
	if p.query != "" {
		return p.printQuery(r)
	}

	switch p.format {
	case "yaml":
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return errors.Wrap(err, "encode yaml")
		}
		return enc.Close()
	case "text":
		return p.printText(r)
	default:
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return errors.Wrap(enc.Encode(r), "encode json")
	}
}

func (p printer) printQuery(r binding.Result) error {
	if r.Content == nil {
		return errors.New("query needs a text body")
	}
	if !gjson.Valid(*r.Content) {
		return errors.New("query needs a JSON body")
	}

	found := gjson.Get(*r.Content, p.query)
	if !found.Exists() {
		return errors.Errorf("query %q matched nothing", p.query)
	}

	_, err := fmt.Fprintln(p.w, found.String())
	return err
}

func (p printer) printText(r binding.Result) error {
	bold := color.New(color.Bold).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fmt.Fprintf(p.w, "%s %s\n", bold("status:"), statusColor(r.Status).Sprint(r.Status))
	fmt.Fprintf(p.w, "%s %d\n", bold("length:"), r.ContentLength)

	if r.Headers != nil {
		fmt.Fprintf(p.w, "\n%s\n", strings.TrimRight(*r.Headers, "\r\n"))
	}

	switch {
	case r.BinaryContent != nil:
		fmt.Fprintf(p.w, "\n[binary content, %d bytes]\n", len(r.BinaryContent))
	case r.Content != nil && *r.Content != "":
		fmt.Fprintf(p.w, "\n%s\n", *r.Content)
	}

	if r.Error != nil {
		fmt.Fprintf(p.w, "\n%s %s\n", red("error:"), *r.Error)
	}

	return nil
}

func statusColor(code int) *color.Color {
	switch metrics.StatusClass(code) {
	case "2xx":
		return color.New(color.FgGreen)
	case "3xx":
		return color.New(color.FgCyan)
	case "4xx":
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}

func dumpMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return errors.Wrap(err, "gather")
	}

	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return errors.Wrap(err, "encode")
		}
	}

	return nil
}
