//go:build !linux

package i2c

import "errors"

func openTransport(int) (transport, error) {
	return nil, errors.New("i2c: i2c-dev is only available on linux")
}
