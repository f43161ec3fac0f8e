package devicedb

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/OpenTraceLab/OpenTraceFabric/pkg/builder"
	"github.com/OpenTraceLab/OpenTraceFabric/pkg/device"
)

// DirLoader returns a loader for parts kept in dir. A part is read from
// NAME.fdb; when only NAME.xdlrc exists it is built and the database is
// written next to it for the next load.
func DirLoader(dir string, opts builder.Options) device.Loader {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return func(name string) (*device.Device, error) {
		db := filepath.Join(dir, name+Extension)
		if _, err := os.Stat(db); err == nil {
			start := time.Now()
			dev, err := Load(db)
			if err != nil {
				return nil, err
			}
			log.WithFields(logrus.Fields{"device": name, "elapsed": time.Since(start)}).Info("device database loaded")
			return dev, nil
		}

		src := filepath.Join(dir, name+".xdlrc")
		if _, err := os.Stat(src); err != nil {
			return nil, errors.Errorf("no device database or description for %s in %s", name, dir)
		}
		o := opts
		o.Name = name
		o.Filename = ""
		dev, err := builder.BuildFile(context.Background(), src, o)
		if err != nil {
			return nil, err
		}
		if err := Save(db, dev); err != nil {
			log.WithError(err).WithField("device", name).Warn("could not cache device database")
		}
		return dev, nil
	}
}
