package logger

import (
	"bytes"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubloggerTagsModule(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	require.NoError(t, Init("debug"))
	defer logger.SetLevel(logrus.InfoLevel)

	NewSublogger("purchase").Debug("step")
	assert.Contains(t, buf.String(), "module=escrow.purchase")
	assert.Contains(t, buf.String(), "msg=step")
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	assert.Error(t, Init("chatty"))
	assert.NoError(t, Init(""))
}
