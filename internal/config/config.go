package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Options selects where the file and environment layers are read from.
type Options struct {
	// FilePath is the config file. An empty path skips the file layer.
	FilePath string
	// FileRequired fails when FilePath does not exist; otherwise a missing
	// file yields an empty file layer.
	FileRequired bool
	// EnvPrefix namespaces environment variables, DefaultEnvPrefix if empty.
	EnvPrefix string
}

// ReadLayers reads defaults, file and environment, in precedence order.
// This is the only step that touches the filesystem or the environment.
func ReadLayers(opts Options) ([]Layer, error) {
	fileLayer := NewLayer(SourceFile, nil)
	if opts.FilePath != "" {
		_, err := os.Stat(opts.FilePath)
		switch {
		case err == nil:
			fileLayer, err = ReadFile(opts.FilePath)
			if err != nil {
				return nil, err
			}
		case errors.Is(err, fs.ErrNotExist) && !opts.FileRequired:
		default:
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	envLayer, err := ReadEnv(opts.EnvPrefix)
	if err != nil {
		return nil, err
	}

	return []Layer{DefaultsLayer(), fileLayer, envLayer}, nil
}

// Load reads all layers and resolves them into a GatewayConfig.
func Load(opts Options) (*GatewayConfig, error) {
	layers, err := ReadLayers(opts)
	if err != nil {
		return nil, err
	}
	return Resolve(layers...)
}
