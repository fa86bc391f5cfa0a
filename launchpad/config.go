/*
 * config.go, part of matflow.
 *
 * Copyright 2021 Raul Mera <rmeraatusachdotcl>
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License as
 * published by the Free Software Foundation; either version 2.1 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU Lesser General
 * Public License along with this program.  If not, see
 * <http://www.gnu.org/licenses/>.
 *
 */

package launchpad

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/rmera/matflow/store"
)

//Config is the content of a my_launchpad.yaml file. Driver, Path and DSN extend
//the usual MongoDB fields so a launchpad can live in Postgres or SQLite.
type Config struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Name       string `yaml:"name"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	AuthSource string `yaml:"authsource"`
	Driver     string `yaml:"driver"`
	Path       string `yaml:"path"`
	DSN        string `yaml:"dsn"`
}

//storeConfig returns the store configuration for the collection coll.
func (C Config) storeConfig(coll string) store.Config {
	name := C.Name
	if name == "" {
		name = "fireworks"
	}
	return store.Config{
		Driver:     C.Driver,
		Host:       C.Host,
		Port:       C.Port,
		Database:   name,
		Collection: coll,
		Username:   C.Username,
		Password:   C.Password,
		AuthSource: C.AuthSource,
		Path:       C.Path,
		DSN:        C.DSN,
	}
}

//Open returns the (not connected) launchpad described by C.
func Open(C Config) (*LaunchPad, error) {
	var s [3]store.Store
	for i, coll := range []string{"fireworks", "workflows", counterName} {
		var err error
		s[i], err = store.Open(C.storeConfig(coll))
		if err != nil {
			return nil, fmt.Errorf("launchpad: %w", err)
		}
	}
	return New(s[0], s[1], s[2]), nil
}

//ReadConfig reads a my_launchpad.yaml file. A relative sqlite path is taken
//as relative to the file.
func ReadConfig(path string) (Config, error) {
	var C Config
	b, err := os.ReadFile(path)
	if err != nil {
		return C, fmt.Errorf("launchpad: %w", err)
	}
	if err := yaml.Unmarshal(b, &C); err != nil {
		return C, fmt.Errorf("launchpad: %s: %w", path, err)
	}
	if C.Path != "" && !filepath.IsAbs(C.Path) {
		C.Path = filepath.Join(filepath.Dir(path), C.Path)
	}
	return C, nil
}

//FromFile returns the launchpad described by the my_launchpad.yaml file at path.
func FromFile(path string) (*LaunchPad, error) {
	C, err := ReadConfig(path)
	if err != nil {
		return nil, err
	}
	return Open(C)
}

//fwConfig is the FW_config.yaml file pointed to by FW_CONFIG_FILE.
type fwConfig struct {
	LaunchpadLoc  string `yaml:"LAUNCHPAD_LOC"`
	FworkerLoc    string `yaml:"FWORKER_LOC"`
	ConfigFileDir string `yaml:"CONFIG_FILE_DIR"`
}

//ErrNoConfig is returned by AutoLoad and AutoFworker when no configuration file is found.
var ErrNoConfig = errors.New("no configuration file found")

//locate finds a configuration file: the location given in the file of the
//FW_CONFIG_FILE environment variable, or the file name in the directory of that
//file (or its CONFIG_FILE_DIR), or name in the working directory, or in ~/.fireworks.
func locate(name string, loc func(fwConfig) string) (string, error) {
	var cands []string
	if p := os.Getenv("FW_CONFIG_FILE"); p != "" {
		var fc fwConfig
		b, err := os.ReadFile(p)
		if err != nil {
			return "", fmt.Errorf("launchpad: FW_CONFIG_FILE: %w", err)
		}
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return "", fmt.Errorf("launchpad: %s: %w", p, err)
		}
		if l := loc(fc); l != "" {
			cands = append(cands, l)
		}
		dir := fc.ConfigFileDir
		if dir == "" {
			dir = filepath.Dir(p)
		}
		cands = append(cands, filepath.Join(dir, name))
	}
	cands = append(cands, name)
	if home, err := os.UserHomeDir(); err == nil {
		cands = append(cands, filepath.Join(home, ".fireworks", name))
	}
	for _, c := range cands {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("launchpad: %w: %s", ErrNoConfig, name)
}

//AutoLoad returns the launchpad of the my_launchpad.yaml file found as FireWorks
//would, starting from the FW_CONFIG_FILE environment variable.
func AutoLoad() (*LaunchPad, error) {
	p, err := locate("my_launchpad.yaml", func(f fwConfig) string { return f.LaunchpadLoc })
	if err != nil {
		return nil, err
	}
	return FromFile(p)
}

//Fworker is the content of a my_fworker.yaml file. Env holds the values
//substituted in the ">>key<<" parameters of the tasks, such as db_file and
//vasp_cmd.
type Fworker struct {
	Name     string         `yaml:"name"`
	Category any            `yaml:"category"`
	Query    string         `yaml:"query"`
	Env      map[string]any `yaml:"env"`
}

//ReadFworker reads a my_fworker.yaml file.
func ReadFworker(path string) (*Fworker, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("launchpad: %w", err)
	}
	var F Fworker
	if err := yaml.Unmarshal(b, &F); err != nil {
		return nil, fmt.Errorf("launchpad: %s: %w", path, err)
	}
	return &F, nil
}

//AutoFworker reads the my_fworker.yaml file found as AutoLoad does.
func AutoFworker() (*Fworker, error) {
	p, err := locate("my_fworker.yaml", func(f fwConfig) string { return f.FworkerLoc })
	if err != nil {
		return nil, err
	}
	return ReadFworker(p)
}

//DBFile returns the path of the calculation database file of the worker.
func (F *Fworker) DBFile() (string, error) {
	p, _ := F.Env["db_file"].(string)
	if p == "" {
		return "", fmt.Errorf("launchpad: fworker %s has no env.db_file", F.Name)
	}
	return p, nil
}

//DBFromFworker returns the (not connected) task store of the worker described by
//the my_fworker.yaml file at path, or found by AutoFworker if path is empty.
func DBFromFworker(path string) (store.Store, error) {
	var F *Fworker
	var err error
	if path == "" {
		F, err = AutoFworker()
	} else {
		F, err = ReadFworker(path)
	}
	if err != nil {
		return nil, err
	}
	db, err := F.DBFile()
	if err != nil {
		return nil, err
	}
	return store.FromDBFile(db)
}
