package main

import (
  "flag"
  "fmt"
  "os"
  "slices"
  "time"

  "github.com/robertof/go-proximity-scanner/ble"
  "github.com/robertof/go-proximity-scanner/collector"
  "github.com/robertof/go-proximity-scanner/device"
  "github.com/robertof/go-proximity-scanner/device/covidsafe"
)

const (
  backendBlueZ = "bluez"
  backendHCI = "hci"
)

type config struct {
  Debug, Trace bool
  Backend string
  Adapter string
  MetricsAddress string
  EnableMetamonitoring bool
  DiscoverDevices bool
  DiscoveryDuration time.Duration
  BluetoothDeviceId int
  BluetoothConnParams ble.ConnParams
  ActiveScan bool
  ReportDuplicates bool
  Timeout, PollInterval time.Duration
  Profile device.Profile
}

type boundProfile struct {
  device.Factory
  name string
  profile *device.Profile
}

var profileFactories = map[string]device.Factory {
  "covidsafe": &covidsafe.Factory{},
}

func (p *boundProfile) String() string {
  return ""
}

func (p *boundProfile) Set(v string) error {
  ps := device.NewProfileSpec(v)

  profile, err := p.FromSpec(ps)
  if err != nil {
    return fmt.Errorf("failed to create %v profile: %w", p.name, err)
  }

  *p.profile = profile

  return nil
}

func ParseArgs() config {
  var cfg config

  cfg.BluetoothConnParams = ble.ConnParamsDefault

  flag.StringVar(&cfg.Backend, "backend", backendBlueZ,
    fmt.Sprintf("Bluetooth stack to use (one of '%v' or '%v')", backendBlueZ, backendHCI))
  flag.StringVar(&cfg.Adapter, "adapter", "", "Bluetooth adapter to use, e.g. 'hci0'. Defaults to the first one")
  flag.IntVar(&cfg.BluetoothDeviceId, "hci-device", 0, "Bluetooth (HCI) device ID, for the hci backend")
  flag.Var(&cfg.BluetoothConnParams, "bluetooth-connection-params",
    fmt.Sprintf("Bluetooth connection parameters for the hci backend (one of %v)", ble.AllConnParams))
  flag.BoolVar(&cfg.ActiveScan, "active-scan", true,
    "Request scan responses, for the hci backend. Peers often only list their services there")
  flag.BoolVar(&cfg.ReportDuplicates, "report-duplicates", false,
    "Have the controller report every advertisement instead of filtering repeats, for the hci backend. "+
    "Helps peers whose services only appear in later advertisements")
  flag.StringVar(&cfg.MetricsAddress, "metrics-addr", "", "Where to serve Prometheus metrics. Disabled if empty")
  flag.BoolVar(&cfg.EnableMetamonitoring, "metamonitoring", true,
    "Export Go runtime and process metrics along with the scanner ones")
  flag.BoolVar(&cfg.DiscoverDevices, "discover", false, "Discover available BLE devices and quit")
  flag.DurationVar(&cfg.DiscoveryDuration, "discover-duration", 5 * time.Second,
    "How long device discovery runs for")
  flag.DurationVar(&cfg.Timeout, "timeout", collector.DefaultTimeout,
    "Timeout for each step of a session (link-up, services resolution, read and disconnect)")
  flag.DurationVar(&cfg.PollInterval, "poll-interval", collector.DefaultPollInterval,
    "How often device properties are polled while waiting on them")
  flag.BoolVar(&cfg.Debug, "debug", false, "Enable debug logs")
  flag.BoolVar(&cfg.Trace, "trace", false, "Enable trace logs")

  for profileName, profileFactory := range profileFactories {
    bound := boundProfile{
      name:    profileName,
      Factory: profileFactory,
      profile: &cfg.Profile,
    }

    help := "Profile spec in the form of `key=value,key=value`."

    if docs, ok := profileFactory.(device.FactoryDocs); ok {
      help += "\n" + docs.Help()
    }

    flag.Var(&bound, profileName, help)
  }

  flag.Parse()

  if !slices.Contains([]string{backendBlueZ, backendHCI}, cfg.Backend) {
    fmt.Fprintf(os.Stderr, "Error: unknown backend %q!\n", cfg.Backend)
    flag.Usage()
    os.Exit(1)
  }

  if cfg.Timeout <= 0 {
    fmt.Fprintln(os.Stderr, "Error: the timeout must be positive!")
    flag.Usage()
    os.Exit(1)
  }

  if cfg.Profile == nil {
    cfg.Profile = covidsafe.DefaultProfile()
  }

  return cfg
}
