package labels

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"

	"github.com/khaledhikmat/od-prepost/model"
)

type record struct {
	Class string `json:"class" yaml:"class"`
}

type tableService struct {
	names map[int]string
	size  int
}

// New builds a table where each name's index is its position.
func New(names []string) IService {
	m := make(map[int]string, len(names))
	for i, name := range names {
		m[i] = name
	}
	return &tableService{names: m, size: len(names)}
}

// NewFromMap builds a table from sparse index/name pairs, as found in label
// maps whose ids do not start at zero.
func NewFromMap(names map[int]string) IService {
	m := make(map[int]string, len(names))
	size := 0
	for k, v := range names {
		m[k] = v
		if k+1 > size {
			size = k + 1
		}
	}
	return &tableService{names: m, size: size}
}

// NewFromFile loads the label resource at path. The format is picked from
// the extension: .json and .yaml/.yml hold a list of {class: name} records
// indexed by position, .pbtxt is a TF object detection label map indexed by id.
func NewFromFile(path string) (IService, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Errorf("read labels %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		var records []record
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, xerrors.Errorf("parse labels %s: %w", path, err)
		}
		return fromRecords(path, records)
	case ".yaml", ".yml":
		var records []record
		if err := yaml.Unmarshal(data, &records); err != nil {
			return nil, xerrors.Errorf("parse labels %s: %w", path, err)
		}
		return fromRecords(path, records)
	case ".pbtxt", ".pbtext":
		names, err := parseLabelMap(string(data))
		if err != nil {
			return nil, xerrors.Errorf("parse labels %s: %w", path, err)
		}
		return NewFromMap(names), nil
	default:
		return nil, xerrors.Errorf("labels %s: unsupported format %q", path, filepath.Ext(path))
	}
}

func fromRecords(path string, records []record) (IService, error) {
	if len(records) == 0 {
		return nil, xerrors.Errorf("labels %s: no records", path)
	}
	names := make([]string, len(records))
	for i, r := range records {
		if strings.TrimSpace(r.Class) == "" {
			return nil, xerrors.Errorf("labels %s: record %d has no class", path, i)
		}
		names[i] = r.Class
	}
	return New(names), nil
}

var (
	itemPattern        = regexp.MustCompile(`(?s)item\s*\{(.*?)\}`)
	idPattern          = regexp.MustCompile(`\bid\s*:\s*(-?\d+)`)
	displayNamePattern = regexp.MustCompile(`\bdisplay_name\s*:\s*"([^"]*)"`)
	namePattern        = regexp.MustCompile(`\bname\s*:\s*"([^"]*)"`)
)

func parseLabelMap(text string) (map[int]string, error) {
	items := itemPattern.FindAllStringSubmatch(text, -1)
	if len(items) == 0 {
		return nil, xerrors.New("no items in label map")
	}

	names := make(map[int]string, len(items))
	for _, item := range items {
		body := item[1]
		idMatch := idPattern.FindStringSubmatch(body)
		if idMatch == nil {
			return nil, xerrors.Errorf("label map item without id: %q", strings.TrimSpace(body))
		}
		id, err := strconv.Atoi(idMatch[1])
		if err != nil {
			return nil, xerrors.Errorf("label map id %q: %w", idMatch[1], err)
		}

		// display_name wins over the machine name
		nameMatch := displayNamePattern.FindStringSubmatch(body)
		if nameMatch == nil {
			nameMatch = namePattern.FindStringSubmatch(body)
		}
		if nameMatch == nil || strings.TrimSpace(nameMatch[1]) == "" {
			return nil, xerrors.Errorf("label map item %d without name", id)
		}
		names[id] = nameMatch[1]
	}
	return names, nil
}

func (svc *tableService) Lookup(index int) (string, error) {
	name, ok := svc.names[index]
	if !ok || name == "" {
		return "", &model.LabelLookupError{Index: index, Size: svc.size}
	}
	return name, nil
}

func (svc *tableService) Len() int {
	return svc.size
}
