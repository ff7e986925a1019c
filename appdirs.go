package main

import (
	"fmt"
	"os"
	"path/filepath"

	xappdirs "github.com/chasinglogic/appdirs"
)

const (
	appName     = "wfbuddy"
	logFileName = "wfbuddy.log"
	dbFileName  = "wfbuddy.sqlite"
)

// appDirs represents the app's local directories for storing logs etc.
type appDirs struct {
	cache string
	data  string
	log   string
}

func newAppDirs() appDirs {
	ad := xappdirs.New(appName)
	x := appDirs{
		data:  ad.UserData(),
		cache: ad.UserCache(),
		log:   ad.UserLog(),
	}
	return x
}

func (ad appDirs) deleteAll() error {
	for _, p := range []string{ad.log, ad.cache, ad.data} {
		if err := os.RemoveAll(p); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", p)
	}
	return nil
}

func (ad appDirs) initLogFile() (string, error) {
	if err := os.MkdirAll(ad.log, os.ModePerm); err != nil {
		return "", err
	}
	return filepath.Join(ad.log, logFileName), nil
}

// initDSN returns the DSN for the database, which holds the cached reference data.
func (ad appDirs) initDSN() (string, error) {
	if err := os.MkdirAll(ad.cache, os.ModePerm); err != nil {
		return "", err
	}
	dsn := fmt.Sprintf("file:%s", filepath.Join(ad.cache, dbFileName))
	return dsn, nil
}
