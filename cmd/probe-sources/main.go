package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"gopkg.in/yaml.v3"

	"github.com/maine/startup_intel_bot/internal/config"
	"github.com/maine/startup_intel_bot/internal/sources"
)

// options - флаги утилиты проверки источников
type options struct {
	Config  string   `long:"config" env:"PIPELINE_CONFIG" default:"configs/pipeline.yaml" description:"Pipeline and sources config file"`
	Only    []string `long:"source" short:"s" description:"Probe only the named source (repeatable)"`
	Samples int      `long:"samples" default:"3" description:"How many titles to print per source"`
	Output  string   `long:"output" short:"o" description:"Write a YAML report to this file"`
}

// sourceReport - строка отчёта для YAML
type sourceReport struct {
	Name     string   `yaml:"name"`
	Kind     string   `yaml:"kind"`
	Articles int      `yaml:"articles"`
	Duration string   `yaml:"duration"`
	Error    string   `yaml:"error,omitempty"`
	Titles   []string `yaml:"titles,omitempty"`
}

func main() {
	var opts options
	if _, err := flags.NewParser(&opts, flags.Default).Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return
		}
		os.Exit(2)
	}

	rootCfg, err := config.LoadRoot(opts.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}

	selected := selectSources(rootCfg.Sources, opts.Only)
	if len(selected) == 0 {
		fmt.Fprintln(os.Stderr, "❌ Ни один источник не подходит под --source")
		os.Exit(1)
	}

	fetchers, err := sources.NewRegistry().Build(selected, sources.Deps{
		HTTP:      &http.Client{Timeout: 30 * time.Second},
		UserAgent: rootCfg.Pipeline.UserAgent,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("🚀 Проверяю %d источников (таймаут %s)\n\n", len(fetchers), rootCfg.Pipeline.FetchTimeout)

	outcomes := sources.NewCollector(fetchers, rootCfg.Pipeline.FetchTimeout).Run(context.Background())

	reports := make([]sourceReport, 0, len(outcomes))
	failed := 0
	for i, o := range outcomes {
		rep := sourceReport{
			Name:     o.Source,
			Kind:     selected[i].Kind,
			Articles: len(o.Articles),
			Duration: o.Duration.Round(time.Millisecond).String(),
		}

		if o.Err != nil {
			failed++
			rep.Error = o.Err.Error()
			fmt.Printf("⚠️  %-24s %-10s ошибка за %s: %v\n", o.Source, rep.Kind, rep.Duration, o.Err)
		} else {
			fmt.Printf("✅ %-24s %-10s %3d статей за %s\n", o.Source, rep.Kind, len(o.Articles), rep.Duration)
		}

		for j, a := range o.Articles {
			if j >= opts.Samples {
				break
			}
			rep.Titles = append(rep.Titles, a.Title)
			fmt.Printf("     - %s\n", a.Title)
		}
		reports = append(reports, rep)
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
	fmt.Printf("📊 ИТОГО: %d источников, %d с ошибками\n", len(outcomes), failed)

	if opts.Output != "" {
		data, err := yaml.Marshal(map[string][]sourceReport{"sources": reports})
		if err != nil {
			fmt.Fprintf(os.Stderr, "⚠️  Ошибка при формировании YAML: %v\n", err)
			os.Exit(1)
		}
		header := "# Результат проверки источников\n# Сгенерировано cmd/probe-sources\n\n"
		if err := os.WriteFile(opts.Output, []byte(header+string(data)), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "⚠️  Не удалось сохранить в файл: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("💾 Результаты сохранены в %s\n", opts.Output)
	}
}

func selectSources(all []config.Source, only []string) []config.Source {
	if len(only) == 0 {
		return all
	}
	wanted := make(map[string]struct{}, len(only))
	for _, name := range only {
		wanted[name] = struct{}{}
	}
	var out []config.Source
	for _, src := range all {
		if _, ok := wanted[src.DisplayName()]; ok {
			out = append(out, src)
		}
	}
	return out
}
