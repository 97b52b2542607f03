package modbus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegisters struct {
	input   map[uint16][]byte
	holding map[uint16][]byte
	err     error
}

func (f *fakeRegisters) ReadInputRegisters(address, quantity uint16) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.input[address][:quantity*2], nil
}

func (f *fakeRegisters) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.holding[address][:quantity*2], nil
}

func xymd02() Config {
	return Config{
		Temperature: &Register{Address: 1, Signed: true, Scale: 10},
		Humidity:    &Register{Address: 2, Scale: 10},
		Lux:         &Register{Address: 7, Wide: true},
	}
}

func TestReadRegisters(t *testing.T) {
	regs := &fakeRegisters{input: map[uint16][]byte{
		1: {0xff, 0x9c},             // -100 -> -10.0
		2: {0x01, 0xc7},             // 455 -> 45.5
		7: {0x00, 0x01, 0x86, 0xa0}, // 100000
	}}
	d := NewDevice(xymd02(), regs, nil)
	temp, hum, err := d.ReadClimate()
	require.NoError(t, err)
	assert.InDelta(t, -10.0, temp, 1e-9)
	assert.InDelta(t, 45.5, hum, 1e-9)
	lux, err := d.ReadLux()
	require.NoError(t, err)
	assert.Equal(t, 100000.0, lux)
	assert.NoError(t, d.Close())
}

func TestHoldingRegisters(t *testing.T) {
	conf := xymd02()
	conf.Holding = true
	regs := &fakeRegisters{holding: map[uint16][]byte{1: {0x00, 0xfa}, 2: {0x02, 0x58}}}
	temp, hum, err := NewDevice(conf, regs, nil).ReadClimate()
	require.NoError(t, err)
	assert.InDelta(t, 25.0, temp, 1e-9)
	assert.InDelta(t, 60.0, hum, 1e-9)
}

func TestReadErrors(t *testing.T) {
	d := NewDevice(xymd02(), &fakeRegisters{err: errors.New("timeout")}, nil)
	_, _, err := d.ReadClimate()
	assert.Error(t, err)
	_, err = d.ReadLux()
	assert.Error(t, err)

	_, err = NewDevice(Config{}, &fakeRegisters{}, nil).ReadLux()
	assert.Error(t, err)
}

func TestOpenRejectsScheme(t *testing.T) {
	_, err := Open(Config{URL: "udp://host:502"})
	assert.Error(t, err)
}
