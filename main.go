/*
Copyright 2022 The l7mp/stunner team.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zapcore"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	"sigs.k8s.io/yaml"

	"github.com/l7mp/dynadata/internal/buildinfo"
	"github.com/l7mp/dynadata/pkg/aggregate"
	"github.com/l7mp/dynadata/pkg/changeset"
	"github.com/l7mp/dynadata/pkg/gate"
	"github.com/l7mp/dynadata/pkg/group"
	"github.com/l7mp/dynadata/pkg/invalidate"
	"github.com/l7mp/dynadata/pkg/metrics"
	"github.com/l7mp/dynadata/pkg/mirror"
	"github.com/l7mp/dynadata/pkg/source"
	"github.com/l7mp/dynadata/pkg/stream"
	"github.com/l7mp/dynadata/pkg/util"
)

var (
	version    = "dev"
	commitHash = "n/a"
	buildDate  = "<unknown>"
)

const defaultScenario = `
steps:
  - op: upsert
    people: [{name: A, age: 10}, {name: B, age: 20}, {name: C, age: 30}]
  - op: remove
    names: [A]
  - op: age
    people: [{name: B, age: 34}]
  - op: upsert
    people: [{name: D, age: 41}, {name: E, age: 12}]
  - op: clear
`

type person struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

// Step is one mutation of the scenario. Op is one of upsert, remove, age (mutate ages in place
// and check for changes) and clear.
type Step struct {
	Op     string    `json:"op"`
	People []*person `json:"people,omitempty"`
	Names  []string  `json:"names,omitempty"`
}

// Scenario is the sequence of steps replayed by the demo.
type Scenario struct {
	Steps []Step `json:"steps"`
}

func main() {
	var scenarioFile string
	flag.StringVar(&scenarioFile, "scenario", "", "YAML scenario to replay, the built-in one if empty.")

	opts := zap.Options{
		Development:     true,
		DestWriter:      os.Stderr,
		StacktraceLevel: zapcore.Level(3),
		TimeEncoder:     zapcore.RFC3339NanoTimeEncoder,
	}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()

	logger := zap.New(zap.UseFlagOptions(&opts)).WithName("dynadata")
	setupLog := logger.WithName("setup")

	buildInfo := buildinfo.BuildInfo{Version: version, CommitHash: commitHash, BuildDate: buildDate}
	setupLog.Info(fmt.Sprintf("starting %s", buildInfo.String()))

	data := []byte(defaultScenario)
	if scenarioFile != "" {
		b, err := os.ReadFile(scenarioFile)
		if err != nil {
			setupLog.Error(err, "cannot read scenario", "file", scenarioFile)
			os.Exit(1)
		}
		data = b
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		setupLog.Error(err, "cannot parse scenario")
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		setupLog.Error(err, "cannot register metrics")
		os.Exit(1)
	}

	if err := run(scenario, logger); err != nil {
		setupLog.Error(err, "scenario failed")
		os.Exit(1)
	}

	families, err := reg.Gather()
	if err != nil {
		setupLog.Error(err, "cannot gather metrics")
		os.Exit(1)
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			v := m.GetCounter().GetValue() + m.GetGauge().GetValue()
			setupLog.Info("metric", "name", mf.GetName(), "labels", m.GetLabel(), "value", v)
		}
	}
}

func run(scenario Scenario, logger logr.Logger) error {
	log := logger.WithName("demo")

	src := source.NewSourceCache(func(p *person) string { return p.Name },
		source.Options[*person]{Name: "people", Logger: logger})
	defer src.Dispose()

	ages, err := invalidate.WatchValues(src.Connect(), func(p *person) int { return p.Age }, logger)
	if err != nil {
		return err
	}
	defer ages.Dispose()

	avgSub, err := stream.SubscribeFunc(aggregate.Avg(src.Connect(), func(p *person) float64 { return float64(p.Age) },
		aggregate.Options{Invalidate: ages.Signal(), Logger: logger}), func(v float64) error {
		log.Info("average age", "value", v)
		return nil
	})
	if err != nil {
		return err
	}
	defer avgSub.Dispose()

	decades := group.On(src.Connect(), func(p *person) int { return p.Age / 10 * 10 },
		group.Options[string]{Regroup: ages.Observable(), Logger: logger})
	groupSub, err := stream.SubscribeFunc(gate.DeferUntilLoaded(decades),
		func(cs changeset.ChangeSet[int, *group.Group[string, *person, int]]) error {
			for _, c := range cs {
				log.Info("age group", "reason", c.Reason.String(), "decade", c.Key, "members", c.Current.Keys())
			}
			return nil
		})
	if err != nil {
		return err
	}
	defer groupSub.Dispose()

	var people []*person
	mirrorSub, err := stream.SubscribeFunc(gate.SkipInitial(mirror.Clone(src.Connect(), &people)),
		func(cs changeset.ChangeSet[string, *person]) error {
			log.V(2).Info("live change set", "changes", cs.String())
			return nil
		})
	if err != nil {
		return err
	}
	defer mirrorSub.Dispose()

	for i, step := range scenario.Steps {
		log.Info("replaying step", "index", i, "op", step.Op)
		if err := apply(src, ages, step); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		names := util.MapSorted(func(p *person) string { return p.Name }, people)
		log.Info("mirrored people", "names", names)
	}

	return nil
}

func apply(src *source.SourceCache[string, *person], ages *invalidate.ValueWatcher[string, *person, int], step Step) error {
	switch step.Op {
	case "upsert":
		return src.AddOrUpdate(step.People...)
	case "remove":
		return src.Remove(step.Names...)
	case "age":
		for _, p := range step.People {
			cur, ok := src.Lookup(p.Name)
			if !ok {
				return fmt.Errorf("unknown person %q", p.Name)
			}
			cur.Age = p.Age
		}
		return ages.Check()
	case "clear":
		return src.Clear()
	default:
		return errors.New("unknown op " + step.Op)
	}
}
