package settings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/boat-telnet/internal/errors"
	"github.com/wfunc/boat-telnet/internal/repository"
	"gorm.io/gorm"
)

func newTestHost(t *testing.T) (*Host, *gorm.DB) {
	db := repository.TestDB(t)
	return NewHost(repository.NewSettingRepository(db), nil), db
}

func TestRegisterBool_PersistsDefault(t *testing.T) {
	h, db := newTestHost(t)

	v, err := h.RegisterBool("ENABLE_UDP", "启用UDP广播", true, nil)
	require.NoError(t, err)
	assert.True(t, v)

	// 再次启动时以持久化值为准
	repo := repository.NewSettingRepository(db)
	require.NoError(t, repo.SetBool(context.Background(), "ENABLE_UDP", false, ""))

	h2 := NewHost(repository.NewSettingRepository(db), nil)
	v, err = h2.RegisterBool("ENABLE_UDP", "启用UDP广播", true, nil)
	require.NoError(t, err)
	assert.False(t, v)
}

func TestRegister_Duplicate(t *testing.T) {
	h, _ := newTestHost(t)

	_, err := h.RegisterBool("A", "", false, nil)
	require.NoError(t, err)
	_, err = h.RegisterBool("A", "", false, nil)
	assert.True(t, errors.Is(err, errors.ErrSettingDuplicate))

	err = h.RegisterString("A", "", func() string { return "" })
	assert.True(t, errors.Is(err, errors.ErrSettingDuplicate))
}

func TestSetBool_CallbackAndListeners(t *testing.T) {
	h, _ := newTestHost(t)
	ctx := context.Background()

	var got []bool
	_, err := h.RegisterBool("ENABLE_UDP", "", false, func(v bool) { got = append(got, v) })
	require.NoError(t, err)

	var events []string
	h.Subscribe(func(id, value string) { events = append(events, id+"="+value) })

	require.NoError(t, h.SetBool(ctx, "ENABLE_UDP", true, SourceHTTP))
	// 值未变化时不触发回调
	require.NoError(t, h.SetBool(ctx, "ENABLE_UDP", true, SourceHTTP))
	require.NoError(t, h.SetBool(ctx, "ENABLE_UDP", false, SourceMQTT))

	assert.Equal(t, []bool{true, false}, got)
	assert.Equal(t, []string{"ENABLE_UDP=true", "ENABLE_UDP=false"}, events)

	v, err := h.Get("ENABLE_UDP")
	require.NoError(t, err)
	assert.Equal(t, "false", v.Value)
}

func TestSetBool_Errors(t *testing.T) {
	h, _ := newTestHost(t)
	ctx := context.Background()

	require.NoError(t, h.RegisterString("STATUS", "", func() string { return "ok" }))

	err := h.SetBool(ctx, "MISSING", true, SourceHTTP)
	assert.True(t, errors.Is(err, errors.ErrSettingNotFound))

	err = h.SetBool(ctx, "STATUS", true, SourceHTTP)
	assert.True(t, errors.Is(err, errors.ErrSettingReadOnly))

	err = h.SetFromString(ctx, "STATUS", "hello", SourceHTTP)
	assert.True(t, errors.Is(err, errors.ErrSettingReadOnly))

	err = h.SetFromString(ctx, "MISSING", "hello", SourceHTTP)
	assert.True(t, errors.Is(err, errors.ErrSettingNotFound))
}

func TestSetFromString(t *testing.T) {
	h, _ := newTestHost(t)
	ctx := context.Background()

	_, err := h.RegisterBool("ENABLE_UDP", "", false, nil)
	require.NoError(t, err)

	tests := []struct {
		text string
		want string
	}{
		{"on", "true"},
		{"0", "false"},
		{" TRUE ", "true"},
		{"off", "false"},
		{"1", "true"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			require.NoError(t, h.SetFromString(ctx, "ENABLE_UDP", tt.text, SourceHTTP))
			v, err := h.Get("ENABLE_UDP")
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Value)
		})
	}

	err = h.SetFromString(ctx, "ENABLE_UDP", "maybe", SourceHTTP)
	assert.True(t, errors.Is(err, errors.ErrSettingType))
}

func TestList_RegistrationOrder(t *testing.T) {
	h, _ := newTestHost(t)

	status := "in:0"
	require.NoError(t, h.RegisterString("STATUS", "转发状态", func() string { return status }))
	_, err := h.RegisterBool("ENABLE_UDP", "启用UDP广播", true, nil)
	require.NoError(t, err)

	status = "in:42"
	list := h.List()
	require.Len(t, list, 2)

	assert.Equal(t, View{ID: "STATUS", Type: "string", Value: "in:42", ReadOnly: true, Description: "转发状态"}, list[0])
	assert.Equal(t, View{ID: "ENABLE_UDP", Type: "bool", Value: "true", Description: "启用UDP广播"}, list[1])

	_, err = h.Get("NOPE")
	assert.True(t, errors.Is(err, errors.ErrSettingNotFound))
}

func TestParseBool(t *testing.T) {
	for _, s := range []string{"true", "1", "on", "ON"} {
		v, ok := ParseBool(s)
		assert.True(t, ok, s)
		assert.True(t, v, s)
	}
	for _, s := range []string{"false", "0", "off"} {
		v, ok := ParseBool(s)
		assert.True(t, ok, s)
		assert.False(t, v, s)
	}
	_, ok := ParseBool("yes")
	assert.False(t, ok)
}
