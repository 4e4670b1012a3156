package chat

import "github.com/runwhale/runwhale/pkg/user"

func defaultPrefsOn() user.Prefs {
	return user.Prefs{
		DeployStarted:     false,
		DeploySucceeded:   true,
		DeployFailed:      true,
		DeployStopped:     false,
		DeployRecovered:   true,
		EnvironmentEvents: true,
	}
}

func allPrefsOff() user.Prefs {
	return user.Prefs{}
}
