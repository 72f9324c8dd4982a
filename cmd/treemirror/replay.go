package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/treemirror/dom"
	"github.com/hazyhaar/treemirror/dom/htmldoc"
)

// Script is a scripted sequence of document edits.
//
//	steps:
//	  - op: append
//	    target: "#list"
//	    html: "<li>new</li>"
//	  - op: set_attr
//	    target: "#title"
//	    name: data-growing-title
//	    value: Renamed
//	  - op: flush
//	  - op: wait
//	    duration: 50ms
type Script struct {
	Steps []Step `yaml:"steps"`
}

// Step is one edit. Target and Parent are "body" or "#id".
type Step struct {
	Op       string        `yaml:"op"` // append | insert | move | remove | set_attr | remove_attr | flush | wait
	Target   string        `yaml:"target"`
	Parent   string        `yaml:"parent"` // move destination
	Before   string        `yaml:"before"` // insert/move reference, empty appends
	HTML     string        `yaml:"html"`
	Name     string        `yaml:"name"`
	Value    string        `yaml:"value"`
	Duration time.Duration `yaml:"duration"`
}

var validOps = map[string]bool{
	"append": true, "insert": true, "move": true, "remove": true,
	"set_attr": true, "remove_attr": true, "flush": true, "wait": true,
}

// ParseScript decodes and checks a replay script.
func ParseScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("script: parse: %w", err)
	}
	for i, st := range s.Steps {
		if !validOps[st.Op] {
			return nil, fmt.Errorf("script: steps[%d]: unknown op %q", i, st.Op)
		}
		switch st.Op {
		case "flush", "wait":
		default:
			if st.Target == "" {
				return nil, fmt.Errorf("script: steps[%d]: %s needs a target", i, st.Op)
			}
		}
		if (st.Op == "set_attr" || st.Op == "remove_attr") && st.Name == "" {
			return nil, fmt.Errorf("script: steps[%d]: %s needs a name", i, st.Op)
		}
		if st.Op == "move" && st.Parent == "" {
			return nil, fmt.Errorf("script: steps[%d]: move needs a parent", i)
		}
	}
	return &s, nil
}

// Run applies the steps to doc in order. flush delivers the pending changes
// to observers; wait pauses so that coalescing windows can close.
func (s *Script) Run(ctx context.Context, doc *htmldoc.Document) error {
	for i, st := range s.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := st.apply(ctx, doc); err != nil {
			return fmt.Errorf("script: steps[%d] %s: %w", i, st.Op, err)
		}
	}
	return nil
}

func (st Step) apply(ctx context.Context, doc *htmldoc.Document) error {
	switch st.Op {
	case "flush":
		doc.Flush()
		return nil
	case "wait":
		select {
		case <-time.After(st.Duration):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	target, err := lookup(doc, st.Target)
	if err != nil {
		return err
	}
	switch st.Op {
	case "append":
		_, err = doc.AppendHTML(target, st.HTML)
	case "insert":
		var ref dom.Node
		if ref, err = optional(doc, st.Before); err == nil {
			_, err = doc.InsertHTML(target, ref, st.HTML)
		}
	case "move":
		var parent, ref dom.Node
		if parent, err = lookup(doc, st.Parent); err != nil {
			return err
		}
		if ref, err = optional(doc, st.Before); err == nil {
			err = doc.Move(target, parent, ref)
		}
	case "remove":
		err = doc.Remove(target)
	case "set_attr":
		err = doc.SetAttr(target, st.Name, st.Value)
	case "remove_attr":
		err = doc.RemoveAttr(target, st.Name)
	}
	return err
}

// lookup resolves "body" or "#id".
func lookup(doc *htmldoc.Document, sel string) (dom.Node, error) {
	if sel == "body" {
		return doc.Body(), nil
	}
	id, ok := strings.CutPrefix(sel, "#")
	if !ok || id == "" {
		return nil, fmt.Errorf("bad selector %q: want body or #id", sel)
	}
	n := doc.ByID(id)
	if n == nil {
		return nil, fmt.Errorf("no element %s", sel)
	}
	return n, nil
}

func optional(doc *htmldoc.Document, sel string) (dom.Node, error) {
	if sel == "" {
		return nil, nil
	}
	return lookup(doc, sel)
}

func cmdReplay(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	var cf commonFlags
	var sf sourceFlags
	cf.register(fs)
	sf.register(fs)
	scriptPath := fs.String("script", "", "YAML edit script")
	fs.Parse(args)

	if *scriptPath == "" {
		return fmt.Errorf("replay: -script is required")
	}
	data, err := os.ReadFile(*scriptPath)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	script, err := ParseScript(data)
	if err != nil {
		return err
	}

	logger, cfg, err := cf.setup()
	if err != nil {
		return err
	}
	sf.apply(cfg)
	doc, err := loadDocument(ctx, logger, cfg.Source)
	if err != nil {
		return err
	}
	router, err := buildRouter(cfg, logger)
	if err != nil {
		return err
	}
	defer router.Close()
	logger.Info("treemirror: replaying", "steps", len(script.Steps))
	return mirrorDocument(ctx, logger, cfg, doc, router, script.Run)
}
