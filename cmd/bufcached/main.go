// Command bufcached runs the sector buffer cache as a standalone
// daemon: it opens a device (local file or in-memory for
// experimentation), fronts it with a cache.Cache, optionally exposes
// it over the network, and serves stats/control over ctrlsock and
// adminhttp. Lifecycle is driven by signalrun, configuration by the
// config package, command-line flags by pflag/hugorm.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/wilbur-shi/bufcache/adminhttp"
	"github.com/wilbur-shi/bufcache/cache"
	"github.com/wilbur-shi/bufcache/config"
	"github.com/wilbur-shi/bufcache/ctrlsock"
	"github.com/wilbur-shi/bufcache/device"
	"github.com/wilbur-shi/bufcache/netdevice"
	"github.com/wilbur-shi/bufcache/obslog"
	"github.com/wilbur-shi/bufcache/obslog/syslog"
	"github.com/wilbur-shi/bufcache/signalrun"
	"github.com/wilbur-shi/bufcache/statcache"
	"github.com/wilbur-shi/bufcache/statcache/sink/statsd"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "bufcached:", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("bufcached", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to a TOML/YAML/JSON config file")
	flags.String("device.path", "", "backing file for the local block device (empty: in-memory)")
	flags.Int("device.sector_size", 0, "sector size in bytes (0: use config/default)")
	flags.Int("device.capacity", 0, "number of sectors (0: use config/default)")
	flags.String("log.level", "", "log level (debug, info, notice, warn, error)")
	flags.String("admin_addr", "", "admin HTTP listen address, e.g. :8080")
	flags.String("ctrl_socket_path", "", "runtime control socket path")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	cfg, err := config.LoadWithFlags(*configPath, flags)
	if err != nil {
		return err
	}

	log := newLogger(cfg.Log)

	dev, closeDev, err := openDevice(cfg.Device)
	if err != nil {
		return fmt.Errorf("opening device: %w", err)
	}
	defer closeDev()

	statsClient, err := newStatsClient(cfg.Stats)
	if err != nil {
		return fmt.Errorf("configuring stats: %w", err)
	}
	defer statsClient.Close()

	c, err := cache.Open(cache.Options{
		Device:   dev,
		Capacity: cfg.Device.Capacity,
		Logger:   log.With("cache"),
		Stats:    statsClient,
	})
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}

	var started []signalrun.Runnable
	cfgFn := func() ([]signalrun.Runnable, error) {
		if started != nil {
			return started, nil
		}
		runnables := []signalrun.Runnable{c}

		if cfg.Network.ListenAddr != "" {
			srv := netdevice.NewServer(dev)
			if err := srv.Listen(netdevice.ServerOptions{
				Network: "tcp",
				Addr:    cfg.Network.ListenAddr,
				Logger:  log.With("netdevice"),
			}); err != nil {
				return nil, fmt.Errorf("listening netdevice: %w", err)
			}
			go func() {
				if err := srv.Serve(); err != nil {
					log.Error("netdevice server exited", "err", err)
				}
			}()
			runnables = append(runnables, srv)
		}

		if cfg.CtrlSocketPath != "" {
			ctrl := &ctrlsock.Server{Addr: cfg.CtrlSocketPath, Cache: c, Stats: statsClient, Log: log.With("ctrlsock")}
			if err := ctrl.Listen(); err != nil {
				return nil, fmt.Errorf("listening ctrlsock: %w", err)
			}
			go func() {
				if err := ctrl.Serve(); err != nil {
					log.Error("ctrl socket server exited", "err", err)
				}
			}()
			runnables = append(runnables, ctrl)
		}

		if cfg.AdminAddr != "" {
			admin := adminhttp.New(adminhttp.Options{Addr: cfg.AdminAddr, Cache: c, Stats: statsClient, Logger: log.With("adminhttp")})
			if err := admin.Listen(); err != nil {
				return nil, fmt.Errorf("listening adminhttp: %w", err)
			}
			go func() {
				if err := admin.Serve(); err != nil {
					log.Error("admin http server exited", "err", err)
				}
			}()
			runnables = append(runnables, admin)
		}

		started = runnables
		return runnables, nil
	}

	return signalrun.Run(cfgFn, signalrun.Options{
		Logger:          log,
		ShutdownTimeout: 30 * time.Second,
		OnReload: func() {
			if lvl, ok := syslog.ParsePriority(cfg.Log.Level); ok {
				log.SetLevel(lvl)
			}
		},
	})
}

func newLogger(lc config.LogConfig) *obslog.Logger {
	lvl, ok := syslog.ParsePriority(lc.Level)
	if !ok {
		lvl = syslog.LOG_INFO
	}

	var handler obslog.Handler
	if lc.Format == "json" {
		handler = obslog.NewJSONHandler(os.Stderr)
	} else {
		handler = obslog.NewTextHandler(os.Stderr)
	}
	return obslog.New("bufcached", handler, lvl)
}

func openDevice(dc config.DeviceConfig) (device.BlockDevice, func(), error) {
	sectorSize := dc.SectorSize
	if sectorSize == 0 {
		sectorSize = cache.DefaultSectorSize
	}
	capacity := dc.Capacity
	if capacity == 0 {
		capacity = cache.DefaultCapacity
	}

	if dc.Path == "" {
		return device.NewMem(sectorSize, capacity), func() {}, nil
	}

	f, err := device.OpenFile(dc.Path, sectorSize, capacity)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func newStatsClient(sc config.StatsConfig) (*statcache.Client, error) {
	opts := statcache.Options{}

	if d, err := time.ParseDuration(sc.FlushInterval); err == nil {
		opts.FlushInterval = d
	}

	if sc.StatsdAddr != "" {
		sink, err := statsd.New(sc.StatsdAddr, statsd.Prefix(sc.StatsdPrefix))
		if err != nil {
			return nil, err
		}
		opts.Sink = sink
	}

	return statcache.New(opts), nil
}
