// Package content はリポジトリ情報からSNS向けコンテンツを生成する。
package content

import (
	_ "embed"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/repo2viral/repo2viral/internal/model"
)

//go:embed personas.yaml
var personasYAML []byte

// ErrUnknownPersona は定義されていないtoneが指定されたことを示す。
var ErrUnknownPersona = errors.New("unknown persona")

// Persona はコンテンツの文体を決めるペルソナ。
type Persona struct {
	ID          model.Tone `yaml:"id" json:"id"`
	Name        string     `yaml:"name" json:"name"`
	Icon        string     `yaml:"icon" json:"icon"`
	Locked      bool       `yaml:"locked" json:"locked"`
	Description string     `yaml:"description" json:"description"`
	Voice       string     `yaml:"voice" json:"-"`
}

// Catalog はペルソナの一覧。定義順を保持する。
type Catalog struct {
	defaultID model.Tone
	personas  []Persona
	byID      map[model.Tone]Persona
}

type catalogFile struct {
	Default  model.Tone `yaml:"default"`
	Personas []Persona  `yaml:"personas"`
}

// LoadCatalog は埋め込みのペルソナ定義を読み込む。
func LoadCatalog() (*Catalog, error) {
	return ParseCatalog(personasYAML)
}

// ParseCatalog はYAMLからCatalogを構築する。
// idの重複、空のid、存在しないdefaultはエラーとする。
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse persona catalog: %w", err)
	}
	if len(f.Personas) == 0 {
		return nil, fmt.Errorf("persona catalog is empty")
	}

	c := &Catalog{
		defaultID: f.Default,
		personas:  f.Personas,
		byID:      make(map[model.Tone]Persona, len(f.Personas)),
	}
	for _, p := range f.Personas {
		if p.ID == "" {
			return nil, fmt.Errorf("persona without id: %q", p.Name)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate persona id: %q", p.ID)
		}
		c.byID[p.ID] = p
	}
	if c.defaultID == "" {
		c.defaultID = f.Personas[0].ID
	}
	if _, ok := c.byID[c.defaultID]; !ok {
		return nil, fmt.Errorf("default persona %q is not defined", c.defaultID)
	}
	return c, nil
}

// Lookup はtoneに対応するペルソナを返す。空のtoneはデフォルトとして扱う。
func (c *Catalog) Lookup(tone model.Tone) (Persona, error) {
	if tone == "" {
		tone = c.defaultID
	}
	p, ok := c.byID[tone]
	if !ok {
		return Persona{}, fmt.Errorf("%w: %s", ErrUnknownPersona, tone)
	}
	return p, nil
}

// IsLocked はtoneがProプラン限定かを返す。未定義のtoneはfalse。
func (c *Catalog) IsLocked(tone model.Tone) bool {
	p, err := c.Lookup(tone)
	return err == nil && p.Locked
}

// Default はデフォルトのペルソナを返す。
func (c *Catalog) Default() Persona {
	return c.byID[c.defaultID]
}

// List は定義順のペルソナ一覧を返す。
func (c *Catalog) List() []Persona {
	return append([]Persona(nil), c.personas...)
}
