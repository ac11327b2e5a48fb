package memory

import (
	"testing"

	"github.com/ytdl/ytdl-api/internal/datasource/datasourcetest"
	"github.com/ytdl/ytdl-api/internal/datasource/types"
)

func TestDatasource(t *testing.T) {
	datasourcetest.Run(t, func(t *testing.T) types.Datasource {
		return New()
	})
}
