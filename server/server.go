package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	path "path/filepath"

	"codeberg.org/kvo/std/errors"
	"github.com/redis/go-redis/v9"

	"main/logger"
)

var (
	db      *redis.Client
	respath string
	port    int
	aesKey  []byte
)

func Announce(version string) {
	logger.Info("Running %s", version)
}

type config struct {
	Port    int           `json:"port"`
	Redis   redisConfig   `json:"redis"`
	Logging loggingConfig `json:"logging"`
}

type redisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	Idx      int    `json:"db"`
}

type loggingConfig struct {
	UseLogFile bool `json:"useLogFile"`
}

// getConfig reads config.json from cfgPath, filling in defaults, and
// rewrites the file so newly added keys show up for the operator.
func getConfig(cfgPath string) (config, error) {
	cfg := config{
		Port: 443,
		Redis: redisConfig{
			Addr: "localhost:6379",
		},
		Logging: loggingConfig{
			UseLogFile: false,
		},
	}

	jsonFile, err := os.OpenFile(cfgPath, os.O_RDONLY|os.O_CREATE, 0644)
	if err != nil {
		return cfg, errors.New("failed to open config.json", errors.New(err.Error(), nil))
	}

	b, err := io.ReadAll(jsonFile)
	if err != nil {
		return cfg, errors.New("failed to read config.json", errors.New(err.Error(), nil))
	}

	err = jsonFile.Close()
	if err != nil {
		return cfg, errors.New("failed to close config.json", errors.New(err.Error(), nil))
	}

	jsonFile, err = os.OpenFile(cfgPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0622)
	if err != nil {
		return cfg, errors.New("failed to open config.json", errors.New(err.Error(), nil))
	}
	defer jsonFile.Close()

	if len(b) > 0 {
		err = json.Unmarshal(b, &cfg)
		if err != nil {
			return cfg, errors.New("failed to unmarshal config.json", errors.New(err.Error(), nil))
		}
	} else {
		logger.Info("Using default configuration settings. These can be edited in the config.json file")
	}

	rawJson, err := json.MarshalIndent(cfg, "", "\t")
	if err != nil {
		return config{}, errors.New("failed to marshal config.json", errors.New(err.Error(), nil))
	}

	_, err = jsonFile.Write(rawJson)
	if err != nil {
		return cfg, errors.New("failed to write to config.json", errors.New(err.Error(), nil))
	}

	return cfg, nil
}

// Initializes the credential database and returns the created instance.
func initDB(addr string, pwd string, idx int) *redis.Client {
	redisDB := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: pwd,
		DB:       idx,
	})

	ctx := context.Background()
	res := redisDB.Ping(ctx)
	if res.Err() != nil {
		logger.Fatal(errors.New("cannot reach redis", errors.New(res.Err().Error(), nil)))
	}

	return redisDB
}

// Configure loads config.json, sets up logging and the credential
// database, and installs key as the encryption key for stored upstream
// secrets.
func Configure(key []byte) error {
	execpath, err := os.Executable()
	if err != nil {
		return errors.New("cannot get path to executable", errors.New(err.Error(), nil))
	}
	respath = path.Join(path.Dir(execpath), "res")

	cfg, err := getConfig(path.Join(respath, "config.json"))
	if err != nil {
		logger.Error(err)
		logger.Warn("Resorting to default configuration settings...")
	}
	if cfg.Logging.UseLogFile {
		logPath := path.Join(respath, "logs")
		err = logger.UseConfigFile(logPath)
		if err != nil {
			return errors.New("log file was not set up successfully", errors.New(err.Error(), nil))
		}
		logger.Info("Log file set up successfully")
	}

	port = cfg.Port
	aesKey = key
	db = initDB(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.Idx)
	return nil
}

// Run starts the feed server, with TLS unless disabled for local use.
func Run(tls bool) error {
	cert := path.Join(respath, "cert.pem")
	key := path.Join(respath, "key.pem")

	mux := http.NewServeMux()
	mux.HandleFunc("/ics/", feedHandler)
	mux.HandleFunc("/api/register", registerHandler)
	mux.HandleFunc("/api/login", loginHandler)
	mux.HandleFunc("/api/logout", logoutHandler)
	mux.HandleFunc("/api/account/password", passwordHandler)
	mux.HandleFunc("/api/accesses", accessesHandler)
	mux.HandleFunc("/api/accesses/", accessHandler)
	mux.HandleFunc("/api/classes", classesHandler)
	mux.HandleFunc("/api/stats", statsHandler)

	var err error
	if tls {
		logger.Info("Running on port %d", port)
		err = http.ListenAndServeTLS(fmt.Sprintf(":%d", port), cert, key, mux)
	} else {
		logger.Warn("Running on port %d (without TLS). DO NOT use this in production", port)
		err = http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
	}
	if err != nil {
		return errors.New("server stopped", errors.New(err.Error(), nil))
	}
	return nil
}
