package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/markusressel/fangrid/internal/fleet"
	"github.com/markusressel/fangrid/internal/ui"
	bolt "go.etcd.io/bbolt"
)

const (
	BucketDeviceNames     = "deviceNames"
	BucketDeviceAddresses = "deviceAddresses"
)

type Persistence interface {
	Init() error

	SaveDeviceName(mac string, name string) (err error)
	LoadDeviceName(mac string) (string, error)
	LoadDeviceNames() (map[string]string, error)
	DeleteDeviceName(mac string) (err error)

	SaveDeviceAddress(mac string, address fleet.Address) (err error)
	LoadDeviceAddress(mac string) (fleet.Address, error)
	DeleteDeviceAddress(mac string) (err error)
}

type persistence struct {
	dbPath string
}

func NewPersistence(dbPath string) Persistence {
	p := &persistence{
		dbPath: dbPath,
	}
	return p
}

func (p persistence) Init() (err error) {
	// get parent path of dbPath
	parentDir := filepath.Dir(p.dbPath)
	_, err = os.Stat(parentDir)
	if errors.Is(err, os.ErrNotExist) {
		// create directory
		ui.Info("Creating directory for db: %s", parentDir)
		err = os.MkdirAll(parentDir, 0755)
		if err != nil {
			return err
		}
	}
	return nil
}

func (p persistence) openPersistence() (db *bolt.DB, err error) {
	db, err = bolt.Open(p.dbPath, 0600, &bolt.Options{Timeout: 1 * time.Minute})
	if err != nil {
		return nil, err
	}
	return db, nil
}

// SaveDeviceName persists the generated name of a discovered device, so an
// unlisted device keeps its name across daemon restarts.
func (p persistence) SaveDeviceName(mac string, name string) (err error) {
	db, err := p.openPersistence()
	if err != nil {
		return err
	}
	defer func(db *bolt.DB) {
		_ = db.Close()
	}(db)

	data, err := json.Marshal(name)
	if err != nil {
		return err
	}

	return db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(BucketDeviceNames))
		if err != nil {
			return fmt.Errorf("create bucket: %s", err)
		}
		err = b.Put([]byte(mac), data)
		return err
	})
}

// LoadDeviceName loads the persisted name of one device.
func (p persistence) LoadDeviceName(mac string) (string, error) {
	db, err := p.openPersistence()
	if err != nil {
		return "", err
	}
	defer func(db *bolt.DB) {
		_ = db.Close()
	}(db)

	var name string
	err = db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketDeviceNames))
		if b == nil {
			return os.ErrNotExist
		}
		v := b.Get([]byte(mac))
		if v == nil {
			return os.ErrNotExist
		}

		err := json.Unmarshal(v, &name)
		if err != nil {
			// if we cannot read the saved data, delete it
			ui.Warning("Unable to unmarshal saved name for %s: %v", mac, err)
			err := b.Delete([]byte(mac))
			if err != nil {
				ui.Error("Unable to delete corrupt data key %s: %v", mac, err)
			}
			return nil
		}

		return err
	})

	return name, err
}

// LoadDeviceNames loads every persisted device name keyed by MAC.
func (p persistence) LoadDeviceNames() (map[string]string, error) {
	db, err := p.openPersistence()
	if err != nil {
		return nil, err
	}
	defer func(db *bolt.DB) {
		_ = db.Close()
	}(db)

	names := map[string]string{}
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketDeviceNames))
		if b == nil {
			// no names saved yet
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var name string
			if err := json.Unmarshal(v, &name); err != nil {
				ui.Warning("Skipping corrupt name entry for %s: %v", string(k), err)
				return nil
			}
			names[string(k)] = name
			return nil
		})
	})

	return names, err
}

func (p persistence) DeleteDeviceName(mac string) error {
	db, err := p.openPersistence()
	if err != nil {
		return err
	}
	defer func(db *bolt.DB) {
		_ = db.Close()
	}(db)

	return db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketDeviceNames))
		if b == nil {
			// no names bucket yet
			return nil
		}
		v := b.Get([]byte(mac))
		if v == nil {
			// no data for given key
			return nil
		}

		return b.Delete([]byte(mac))
	})
}

// SaveDeviceAddress persists the last known network address of a device,
// used to seed targeted re-discovery after a restart.
func (p persistence) SaveDeviceAddress(mac string, address fleet.Address) (err error) {
	db, err := p.openPersistence()
	if err != nil {
		return err
	}
	defer func(db *bolt.DB) {
		_ = db.Close()
	}(db)

	data, err := json.Marshal(address)
	if err != nil {
		return err
	}

	return db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(BucketDeviceAddresses))
		if err != nil {
			return fmt.Errorf("create bucket: %s", err)
		}
		err = b.Put([]byte(mac), data)
		return err
	})
}

// LoadDeviceAddress loads the last known network address of one device.
func (p persistence) LoadDeviceAddress(mac string) (fleet.Address, error) {
	db, err := p.openPersistence()
	if err != nil {
		return fleet.Address{}, err
	}
	defer func(db *bolt.DB) {
		_ = db.Close()
	}(db)

	var address fleet.Address
	err = db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketDeviceAddresses))
		if b == nil {
			return os.ErrNotExist
		}
		v := b.Get([]byte(mac))
		if v == nil {
			return os.ErrNotExist
		}

		err := json.Unmarshal(v, &address)
		if err != nil {
			// if we cannot read the saved data, delete it
			ui.Warning("Unable to unmarshal saved address for %s: %v", mac, err)
			err := b.Delete([]byte(mac))
			if err != nil {
				ui.Error("Unable to delete corrupt data key %s: %v", mac, err)
			}
			return nil
		}

		return err
	})

	return address, err
}

func (p persistence) DeleteDeviceAddress(mac string) error {
	db, err := p.openPersistence()
	if err != nil {
		return err
	}
	defer func(db *bolt.DB) {
		_ = db.Close()
	}(db)

	return db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketDeviceAddresses))
		if b == nil {
			// no addresses bucket yet
			return nil
		}
		v := b.Get([]byte(mac))
		if v == nil {
			// no data for given key
			return nil
		}

		return b.Delete([]byte(mac))
	})
}
