package models

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/funcsea/appbackend/internal/conf"
	"github.com/funcsea/appbackend/internal/storage"
	"github.com/funcsea/appbackend/internal/storage/test"
)

const modelsTestConfig = "../../hack/test.env"

func setupModelsDB(t *testing.T) (*conf.GlobalConfiguration, *storage.Connection) {
	globalConfig, err := conf.LoadGlobal(modelsTestConfig)
	require.NoError(t, err)

	conn := test.SetupDBConnectionOrSkip(t, globalConfig)
	return globalConfig, conn
}
