// Package dataset persists analyzed transaction sets on disk, keyed by a
// content hash of the raw upload so re-analyzing the same file is a cache
// hit.
package dataset

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/aptlens/aptlens/internal/model"
)

// Manifest is the sidecar metadata for one cached dataset.
type Manifest struct {
	Hash      string    `yaml:"hash" json:"hash"`
	Source    string    `yaml:"source" json:"source"`
	Rows      int       `yaml:"rows" json:"rows"`
	Matched   int       `yaml:"matched" json:"matched"`
	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
}

// Dataset is an analyzed transaction set plus its manifest.
type Dataset struct {
	Manifest Manifest
	Rows     []model.Transaction
}

// Cache is a directory of <hash>.csv row files with <hash>.yaml manifests.
type Cache struct {
	dir string
}

func NewCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "dataset: create cache dir %s", dir)
	}
	return &Cache{dir: dir}, nil
}

// Hash keys a dataset by its raw input bytes.
func Hash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func (c *Cache) csvPath(hash string) string  { return filepath.Join(c.dir, hash+".csv") }
func (c *Cache) yamlPath(hash string) string { return filepath.Join(c.dir, hash+".yaml") }

// Load returns the cached dataset for a hash, or nil when absent. A dataset
// with a missing or unreadable half counts as absent.
func (c *Cache) Load(hash string) (*Dataset, error) {
	manifestRaw, err := os.ReadFile(c.yamlPath(hash))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: read manifest %s", hash)
	}
	var manifest Manifest
	if err := yaml.Unmarshal(manifestRaw, &manifest); err != nil {
		return nil, eris.Wrapf(err, "dataset: parse manifest %s", hash)
	}

	f, err := os.Open(c.csvPath(hash))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: open rows %s", hash)
	}
	defer f.Close() //nolint:errcheck

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: parse rows %s", hash)
	}
	if len(records) == 0 {
		return nil, eris.Errorf("dataset: rows file %s has no header", hash)
	}

	rows := make([]model.Transaction, 0, len(records)-1)
	for _, record := range records[1:] {
		rows = append(rows, decodeRow(records[0], record))
	}

	zap.L().Debug("dataset cache hit",
		zap.String("hash", hash),
		zap.Int("rows", len(rows)),
	)
	return &Dataset{Manifest: manifest, Rows: rows}, nil
}

// Save writes the row CSV first and the manifest last, so a manifest on disk
// implies complete rows.
func (c *Cache) Save(d *Dataset) error {
	f, err := os.Create(c.csvPath(d.Manifest.Hash))
	if err != nil {
		return eris.Wrapf(err, "dataset: create rows %s", d.Manifest.Hash)
	}
	if err := WriteCSV(f, d.Rows); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	if err := f.Close(); err != nil {
		return eris.Wrap(err, "dataset: close rows")
	}

	manifestRaw, err := yaml.Marshal(d.Manifest)
	if err != nil {
		return eris.Wrap(err, "dataset: marshal manifest")
	}
	if err := os.WriteFile(c.yamlPath(d.Manifest.Hash), manifestRaw, 0o644); err != nil {
		return eris.Wrapf(err, "dataset: write manifest %s", d.Manifest.Hash)
	}
	return nil
}

// WriteCSV renders rows as canonical-header CSV, the same codec the cache
// stores and the export endpoint serves.
func WriteCSV(w io.Writer, rows []model.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(model.DisplayColumns); err != nil {
		return eris.Wrap(err, "dataset: write header")
	}
	for i := range rows {
		record := make([]string, len(model.DisplayColumns))
		for j, col := range model.DisplayColumns {
			record[j] = rows[i].Text(col)
		}
		if err := cw.Write(record); err != nil {
			return eris.Wrap(err, "dataset: write row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "dataset: flush rows")
}

// decodeRow rebuilds a transaction from a canonical-header CSV record.
func decodeRow(header, record []string) model.Transaction {
	var tx model.Transaction
	for i, col := range header {
		if i >= len(record) {
			break
		}
		setColumn(&tx, col, record[i])
	}
	return tx
}

func setColumn(tx *model.Transaction, col, raw string) {
	switch col {
	case model.ColDistrict:
		tx.District = raw
	case model.ColLot:
		tx.Lot = raw
	case model.ColComplex:
		tx.Complex = raw
	case model.ColRoadAddress:
		tx.RoadAddress = raw
	default:
		if raw == "" {
			return
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return
		}
		switch col {
		case model.ColArea:
			tx.Area = &v
		case model.ColContractYM:
			tx.ContractYM = &v
		case model.ColPrice:
			tx.Price = &v
		case model.ColFloor:
			tx.Floor = &v
		case model.ColBuildYear:
			tx.BuildYear = &v
		case model.ColAreaPyeong:
			tx.AreaPyeong = &v
		case model.ColPricePerPyeong:
			tx.PricePerPyeong = &v
		case model.ColSupplyPyeong:
			tx.SupplyPerPyeong = &v
		case model.ColLatitude:
			tx.Latitude = &v
		case model.ColLongitude:
			tx.Longitude = &v
		case model.ColDistanceKm:
			tx.DistanceKm = &v
		}
	}
}
