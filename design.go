package couchsite

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator"
	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
	"gopkg.in/yaml.v3"
)

// DesignPrefix starts the ID of every design document.
const DesignPrefix = "_design/"

// DesignExts are the file extensions recognized in a design directory.
// JSON files go through the YAML parser, which accepts them as is.
var DesignExts = []string{".json", ".yaml", ".yml"}

// DesignSet maps design names to design document bodies, as loaded
// from one design file.
type DesignSet map[string]map[string]interface{}

// Names returns the design names in lexical order.
func (s DesignSet) Names() (names []string) {
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return
}

// designSchema is the part of a design body that gets validated.  The
// stored body is the untyped map, so fields not listed here survive
// untouched.
type designSchema struct {
	Language string               `yaml:"language"`
	Views    map[string]yaml.Node `yaml:"views"`
}

type viewSchema struct {
	Map    string `yaml:"map" validate:"required"`
	Reduce string `yaml:"reduce"`
}

// LibView holds CommonJS modules for map functions, not a view.
const LibView = "lib"

var validate = validator.New()

// LoadDesignFile parses one design file.  The top level must be a
// mapping of design names to mappings; every view needs a map
// function.
func LoadDesignFile(path string) (set DesignSet, err error) {
	defer func() {
		if err != nil {
			set = nil
			err = &DesignError{File: path, Err: err}
		}
	}()
	defer Return(&err)

	buf, err := ioutil.ReadFile(path)
	Ck(err)
	return ParseDesigns(buf)
}

// ParseDesigns parses the content of a design file.
func ParseDesigns(buf []byte) (set DesignSet, err error) {
	var nodes map[string]yaml.Node
	err = yaml.Unmarshal(buf, &nodes)
	if err != nil {
		return
	}
	set = make(DesignSet, len(nodes))
	for name, node := range nodes {
		if name == "" || strings.Contains(name, "/") {
			return nil, fmt.Errorf("bad design name %q", name)
		}
		if node.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("design %s: body is not a mapping", name)
		}
		var schema designSchema
		err = node.Decode(&schema)
		if err != nil {
			return nil, fmt.Errorf("design %s: %w", name, err)
		}
		for view, vnode := range schema.Views {
			if view == LibView {
				continue
			}
			var vs viewSchema
			err = vnode.Decode(&vs)
			if err == nil {
				err = validate.Struct(vs)
			}
			if err != nil {
				return nil, fmt.Errorf("design %s: view %s: %w", name, view, err)
			}
		}
		var raw map[string]interface{}
		err = node.Decode(&raw)
		if err != nil {
			return nil, fmt.Errorf("design %s: %w", name, err)
		}
		var body map[string]interface{}
		body, err = stringKeys(raw)
		if err != nil {
			return nil, fmt.Errorf("design %s: %w", name, err)
		}
		// the store owns these
		delete(body, "_id")
		delete(body, "_rev")
		// the body goes to the store as JSON; fail here, before
		// anything is deleted
		_, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("design %s: %w", name, err)
		}
		set[name] = body
	}
	return
}

// stringKeys copies v with every nested map keyed by strings.  YAML
// allows keys like 2020 or true, which decode as non-string keys JSON
// can't carry.
func stringKeys(v map[string]interface{}) (out map[string]interface{}, err error) {
	out = make(map[string]interface{}, len(v))
	for k, val := range v {
		out[k], err = normalize(val)
		if err != nil {
			return nil, err
		}
	}
	return
}

func normalize(v interface{}) (interface{}, error) {
	switch v := v.(type) {
	case map[string]interface{}:
		return stringKeys(v)
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(v))
		for k, val := range v {
			key := fmt.Sprint(k)
			if _, dup := m[key]; dup {
				return nil, fmt.Errorf("duplicate key %q", key)
			}
			var err error
			m[key], err = normalize(val)
			if err != nil {
				return nil, err
			}
		}
		return m, nil
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, val := range v {
			var err error
			out[i], err = normalize(val)
			if err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	return v, nil
}

// ListDesignFiles returns the design files directly inside dir in
// lexical order.  A missing dir holds no design files.
func ListDesignFiles(dir string) (files []string, err error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		log.Debugf("no design directory %s", dir)
		return nil, nil
	}
	if err != nil {
		return nil, &FileError{Path: dir, Err: err}
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || IsHidden(name) || !isDesignExt(filepath.Ext(name)) {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	return
}

func isDesignExt(ext string) bool {
	ext = strings.ToLower(ext)
	for _, e := range DesignExts {
		if ext == e {
			return true
		}
	}
	return false
}

// UploadDesigns replaces one design document per design found in the
// design files of dir.  Each file is parsed completely before any of
// its designs is written, so a bad file changes nothing.  Unlike
// UploadDirectory, any store error stops the run and is returned.
func (u *Uploader) UploadDesigns(ctx context.Context, dir string) (report *PublishReport, err error) {
	report = &PublishReport{Dir: dir}
	files, err := ListDesignFiles(dir)
	if err != nil {
		return
	}
	for _, file := range files {
		set, err := LoadDesignFile(file)
		if err != nil {
			return report, err
		}
		report.Files = append(report.Files, file)
		for _, name := range set.Names() {
			id := DesignPrefix + name
			log.Infof("uploading %s of %s", id, file)
			_, err = u.replace(ctx, id, set[name])
			if err != nil {
				return report, err
			}
			report.Published = append(report.Published, PublishedDesign{ID: id, File: file})
		}
	}
	return
}
