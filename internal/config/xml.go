package config

import (
	"encoding/xml"
	"fmt"
	"regexp"

	"github.com/alegrigoriev/hg2git/internal/globmatch"
)

// The mapping config file accepted by --config FILE is XML; no library in
// the reference corpus handles any markup format, so this decodes with the
// standard library encoding/xml (SPEC_FULL.md §6 domain note). Everything
// downstream of Load works on the compiled types in config.go, never on
// these wire structs directly.

type xmlDocument struct {
	XMLName  xml.Name      `xml:"hg2git"`
	Projects []xmlProject  `xml:"project"`
}

type xmlProject struct {
	Path       string          `xml:"path,attr"`
	BranchMaps []xmlBranchMap  `xml:"branch-map"`
}

type xmlBranchMap struct {
	Pattern         string           `xml:"pattern,attr"`
	Refname         string           `xml:"refname,attr"`
	RevisionsRef    string           `xml:"revisions-ref,attr"`
	TagMaps         []xmlTagMap      `xml:"tag-map"`
	EditMessages    []xmlEditMessage `xml:"edit-message"`
	GitAttributes   []xmlAttribute   `xml:"gitattributes"`
}

type xmlTagMap struct {
	Pattern string `xml:"pattern,attr"`
	Refname string `xml:"refname,attr"`
}

type xmlEditMessage struct {
	Pattern     string `xml:"pattern,attr"`
	Replacement string `xml:"replacement,attr"`
	MaxCount    int    `xml:"max-count,attr"`
	Final       bool   `xml:"final,attr"`
	RevStart    int    `xml:"rev-start,attr"`
	RevEnd      int    `xml:"rev-end,attr"`
	RevID       string `xml:"rev-id,attr"`
}

type xmlAttribute struct {
	Path  string `xml:"path,attr"`
	Value string `xml:"value,attr"`
}

// Load decodes and compiles a mapping config file's contents.
// branchesPrefix/tagsPrefix seed the namespace roots used by MapRef.
func Load(data []byte, branchesPrefix, tagsPrefix string) (*Config, error) {
	var doc xmlDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}

	cfg := &Config{BranchesPrefix: branchesPrefix, TagsPrefix: tagsPrefix}
	for _, xp := range doc.Projects {
		p := ProjectConfig{}
		if xp.Path != "" {
			p.PathGlob = globmatch.Compile(xp.Path)
		}
		for _, xb := range xp.BranchMaps {
			bm, err := compileBranchMap(xb)
			if err != nil {
				return nil, err
			}
			p.BranchMaps = append(p.BranchMaps, bm)
		}
		cfg.Projects = append(cfg.Projects, p)
	}
	return cfg, nil
}

func compileBranchMap(xb xmlBranchMap) (BranchMap, error) {
	bm := BranchMap{
		Glob:                 globmatch.Compile(xb.Pattern),
		RefnameTemplate:      xb.Refname,
		RevisionsRefTemplate: xb.RevisionsRef,
		Blocked:              xb.Refname == "",
	}
	for _, xt := range xb.TagMaps {
		bm.TagMaps = append(bm.TagMaps, TagMap{
			Pattern:         globmatch.Compile(xt.Pattern),
			RefnameTemplate: xt.Refname,
			Blocked:         xt.Refname == "",
		})
	}
	for _, xe := range xb.EditMessages {
		re, err := regexp.Compile(xe.Pattern)
		if err != nil {
			return BranchMap{}, fmt.Errorf("config: edit-message pattern %q: %w", xe.Pattern, err)
		}
		bm.EditRules = append(bm.EditRules, EditRule{
			Pattern:      re,
			Replacement:  xe.Replacement,
			MaxCount:     xe.MaxCount,
			Final:        xe.Final,
			HasRevRange:  xe.RevStart != 0 || xe.RevEnd != 0,
			RevRangeFrom: xe.RevStart,
			RevRangeTo:   xe.RevEnd,
			RevID:        xe.RevID,
		})
	}
	if len(xb.GitAttributes) > 0 {
		bm.GitAttributes = make(map[string]string, len(xb.GitAttributes))
		for _, xa := range xb.GitAttributes {
			bm.GitAttributes[xa.Path] = xa.Value
		}
	}
	return bm, nil
}
