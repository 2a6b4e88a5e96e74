package receipt

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

const (
	receiptBucketName  = "receipts"
	categoryBucketName = "categories"
)

// DB defines the interface for database operations
type DB interface {
	// SaveReceipt saves a receipt, refreshing its UpdatedAt timestamp
	SaveReceipt(receipt *Receipt) error

	// GetReceipt retrieves a receipt by ID
	GetReceipt(id string) (*Receipt, error)

	// ListReceipts returns all receipts
	ListReceipts() ([]*Receipt, error)

	// DeleteReceipt removes a receipt from the database
	DeleteReceipt(id string) error

	// SaveCategory saves a category, assigning an ID when it has none
	SaveCategory(category *Category) error

	// GetCategory retrieves a category by ID
	GetCategory(id int) (*Category, error)

	// GetCategoryByName retrieves a category by name, case-insensitively
	GetCategoryByName(name string) (*Category, error)

	// ListCategories returns all categories ordered by ID
	ListCategories() ([]*Category, error)

	// CountCategories returns the number of categories
	CountCategories() (int, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	// Create buckets if they don't exist
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(receiptBucketName)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(categoryBucketName)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// SaveReceipt saves a receipt to the database. All field updates land in a
// single transaction, so readers never observe a partially written record.
func (b *BoltDB) SaveReceipt(receipt *Receipt) error {
	receipt.UpdatedAt = EasternNow()
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(receiptBucketName))
		data, err := json.Marshal(receipt)
		if err != nil {
			return fmt.Errorf("marshaling receipt: %w", err)
		}
		return bucket.Put([]byte(receipt.ID), data)
	})
}

// GetReceipt retrieves a receipt by ID
func (b *BoltDB) GetReceipt(id string) (*Receipt, error) {
	var receipt *Receipt
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(receiptBucketName))
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("receipt not found: %s", id)
		}
		return json.Unmarshal(data, &receipt)
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// ListReceipts returns all receipts
func (b *BoltDB) ListReceipts() ([]*Receipt, error) {
	receipts := make([]*Receipt, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(receiptBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var receipt Receipt
			if err := json.Unmarshal(v, &receipt); err != nil {
				return fmt.Errorf("unmarshaling receipt: %w", err)
			}
			receipts = append(receipts, &receipt)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return receipts, nil
}

// DeleteReceipt removes a receipt from the database
func (b *BoltDB) DeleteReceipt(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(receiptBucketName))
		return bucket.Delete([]byte(id))
	})
}

// categoryKey encodes a category ID as a sortable bucket key.
func categoryKey(id int) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(id))
	return key
}

// SaveCategory saves a category, assigning the next sequence ID when the
// category is new.
func (b *BoltDB) SaveCategory(category *Category) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(categoryBucketName))
		if category.ID == 0 {
			seq, err := bucket.NextSequence()
			if err != nil {
				return fmt.Errorf("assigning category id: %w", err)
			}
			category.ID = int(seq)
		}
		data, err := json.Marshal(category)
		if err != nil {
			return fmt.Errorf("marshaling category: %w", err)
		}
		return bucket.Put(categoryKey(category.ID), data)
	})
}

// GetCategory retrieves a category by ID
func (b *BoltDB) GetCategory(id int) (*Category, error) {
	var category *Category
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(categoryBucketName))
		data := bucket.Get(categoryKey(id))
		if data == nil {
			return fmt.Errorf("category not found: %d", id)
		}
		return json.Unmarshal(data, &category)
	})
	if err != nil {
		return nil, err
	}
	return category, nil
}

// GetCategoryByName retrieves a category by name, case-insensitively.
func (b *BoltDB) GetCategoryByName(name string) (*Category, error) {
	var category *Category
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(categoryBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			if category != nil {
				return nil
			}
			var candidate Category
			if err := json.Unmarshal(v, &candidate); err != nil {
				return fmt.Errorf("unmarshaling category: %w", err)
			}
			if strings.EqualFold(candidate.Name, name) {
				category = &candidate
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if category == nil {
		return nil, fmt.Errorf("category not found: %s", name)
	}
	return category, nil
}

// ListCategories returns all categories ordered by ID
func (b *BoltDB) ListCategories() ([]*Category, error) {
	categories := make([]*Category, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(categoryBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var category Category
			if err := json.Unmarshal(v, &category); err != nil {
				return fmt.Errorf("unmarshaling category: %w", err)
			}
			categories = append(categories, &category)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return categories, nil
}

// CountCategories returns the number of categories
func (b *BoltDB) CountCategories() (int, error) {
	var count int
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(categoryBucketName))
		count = bucket.Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
