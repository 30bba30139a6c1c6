package config

// ConfigDiff describes what changed between two configs: server.log_level,
// each nous's weight profile, and each signal collector's enabled flag and
// interval. No other fields are compared.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	NousChanged bool
	NousChanges []NousDiff

	SignalsChanged bool
	SignalChanges  []SignalDiff
}

// NousDiff describes what changed for a single nous's weight profile.
type NousDiff struct {
	ID      string
	Added   bool
	Removed bool
	// Weights holds the new weight map when Added or modified; nil when Removed.
	Weights map[string]float64
}

// SignalDiff describes what changed for a single signal collector's config.
type SignalDiff struct {
	Source              string
	Added               bool
	Removed             bool
	EnabledChanged       bool
	IntervalSecsChanged  bool
	NewEnabled           bool
	NewIntervalSeconds   int
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	for id, oldNous := range old.Nous {
		newNous, exists := new.Nous[id]
		if !exists {
			d.NousChanges = append(d.NousChanges, NousDiff{ID: id, Removed: true})
			d.NousChanged = true
			continue
		}
		if !weightsEqual(oldNous.Weights, newNous.Weights) {
			d.NousChanges = append(d.NousChanges, NousDiff{ID: id, Weights: newNous.Weights})
			d.NousChanged = true
		}
	}
	for id, newNous := range new.Nous {
		if _, exists := old.Nous[id]; !exists {
			d.NousChanges = append(d.NousChanges, NousDiff{ID: id, Added: true, Weights: newNous.Weights})
			d.NousChanged = true
		}
	}

	for source, oldSig := range old.Signals {
		newSig, exists := new.Signals[source]
		if !exists {
			d.SignalChanges = append(d.SignalChanges, SignalDiff{Source: source, Removed: true})
			d.SignalsChanged = true
			continue
		}
		sd := SignalDiff{Source: source, NewEnabled: newSig.Enabled, NewIntervalSeconds: newSig.IntervalSeconds}
		sd.EnabledChanged = oldSig.Enabled != newSig.Enabled
		sd.IntervalSecsChanged = oldSig.IntervalSeconds != newSig.IntervalSeconds
		if sd.EnabledChanged || sd.IntervalSecsChanged {
			d.SignalChanges = append(d.SignalChanges, sd)
			d.SignalsChanged = true
		}
	}
	for source, newSig := range new.Signals {
		if _, exists := old.Signals[source]; !exists {
			d.SignalChanges = append(d.SignalChanges, SignalDiff{
				Source: source, Added: true,
				NewEnabled: newSig.Enabled, NewIntervalSeconds: newSig.IntervalSeconds,
			})
			d.SignalsChanged = true
		}
	}

	return d
}

func weightsEqual(a, b map[string]float64) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}
