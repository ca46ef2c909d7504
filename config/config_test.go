// Copyright 2025 R5 Labs
// This file is part of the R5 Core library.
//
// This software is provided "as is", without warranty of any kind,
// express or implied, including but not limited to the warranties
// of merchantability, fitness for a particular purpose and
// noninfringement. In no event shall the authors or copyright
// holders be liable for any claim, damages, or other liability,
// whether in an action of contract, tort or otherwise, arising
// from, out of or in connection with the software or the use or
// other dealings in the software.

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltmesh/etp-core/etp"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidateRejectsEmptyBindAddress(t *testing.T) {
	cfg := Default()
	cfg.BindAddress = ""

	err := cfg.Validate()
	require.Error(t, err)
	var etpErr *etp.Error
	require.ErrorAs(t, err, &etpErr)
	assert.Equal(t, etp.KindConfiguration, etpErr.Kind)
}

func TestValidateRejectsNonMulticastGroup(t *testing.T) {
	cfg := Default()
	cfg.MulticastGroup = "10.0.0.1"

	err := cfg.Validate()
	require.Error(t, err)
	var etpErr *etp.Error
	require.ErrorAs(t, err, &etpErr)
	assert.Equal(t, etp.KindConfiguration, etpErr.Kind)
}

func TestValidateRejectsOutOfRangeSaleFraction(t *testing.T) {
	cfg := Default()
	cfg.DefaultPercentForSale = 150

	err := cfg.Validate()
	require.Error(t, err)
	var etpErr *etp.Error
	require.ErrorAs(t, err, &etpErr)
	assert.Equal(t, etp.KindConfiguration, etpErr.Kind)
}

func TestValidateRejectsNonPositiveQueueDepth(t *testing.T) {
	cfg := Default()
	cfg.EventBusQueueDepth = 0

	err := cfg.Validate()
	require.Error(t, err)
	var etpErr *etp.Error
	require.ErrorAs(t, err, &etpErr)
	assert.Equal(t, etp.KindConfiguration, etpErr.Kind)
}
