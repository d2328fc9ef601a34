package sqlutil

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNullConverters(t *testing.T) {
	assert.False(t, ToSqlString(nil).Valid)
	s := "Genesis 6:14"
	assert.Equal(t, &s, FromSqlStringPtr(ToSqlString(&s)))

	assert.Nil(t, FromSqlTime(ToSqlTime(nil)))
	now := time.Now()
	assert.True(t, FromSqlTime(ToSqlTime(&now)).Equal(now))

	assert.False(t, ToNullRawMessage(nil).Valid)
	doc := json.RawMessage(`[{"rank":1}]`)
	assert.JSONEq(t, string(doc), string(FromNullRawMessage(ToNullRawMessage(doc))))
}
