package sensor

// Calibration holds the BME280 factory trimming parameters.
type Calibration struct {
	T1 uint16
	T2 int16
	T3 int16

	P1 uint16
	P2 int16
	P3 int16
	P4 int16
	P5 int16
	P6 int16
	P7 int16
	P8 int16
	P9 int16

	H1 uint8
	H2 int16
	H3 uint8
	H4 int16
	H5 int16
	H6 int8
}

// Raw is one burst read of the uncompensated ADC values.
type Raw struct {
	Pressure    int32
	Temperature int32
	Humidity    int32
}

// Environment is a compensated BME280 reading.
type Environment struct {
	TemperatureC float64
	HumidityPct  float64
	PressureHPa  float64
}

func le16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }

// signed12 sign-extends a 12-bit two's complement value.
func signed12(v uint16) int16 {
	if v > 2047 {
		return int16(int32(v) - 4096)
	}
	return int16(v)
}

// ParseCalibration decodes the three calibration blocks read from
// 0x88 (26 bytes), 0xA1 (1 byte) and 0xE1 (7 bytes).
func ParseCalibration(c1, c2, c3 []byte) (Calibration, bool) {
	if len(c1) < 26 || len(c2) < 1 || len(c3) < 7 {
		return Calibration{}, false
	}

	return Calibration{
		T1: le16(c1[0:]),
		T2: int16(le16(c1[2:])),
		T3: int16(le16(c1[4:])),

		P1: le16(c1[6:]),
		P2: int16(le16(c1[8:])),
		P3: int16(le16(c1[10:])),
		P4: int16(le16(c1[12:])),
		P5: int16(le16(c1[14:])),
		P6: int16(le16(c1[16:])),
		P7: int16(le16(c1[18:])),
		P8: int16(le16(c1[20:])),
		P9: int16(le16(c1[22:])),

		H1: c2[0],
		H2: int16(le16(c3[0:])),
		H3: c3[2],
		H4: signed12(uint16(c3[3])<<4 | uint16(c3[4]&0x0F)),
		H5: signed12(uint16(c3[5])<<4 | uint16(c3[4]>>4)&0x0F),
		H6: int8(c3[6]),
	}, true
}

// ParseRaw splits the 8-byte data block at 0xF7.
func ParseRaw(d []byte) Raw {
	return Raw{
		Pressure:    int32(d[0])<<12 | int32(d[1])<<4 | int32(d[2])>>4,
		Temperature: int32(d[3])<<12 | int32(d[4])<<4 | int32(d[5])>>4,
		Humidity:    int32(d[6])<<8 | int32(d[7]),
	}
}

// Compensate converts a raw reading using the Bosch double-precision
// formulas. tFine is shared by all three channels of this one reading.
//
// Every product that feeds an addition is wrapped in float64() so the
// compiler cannot fuse it into an FMA; results then match the reference
// formula bit for bit on arm64 as well as amd64.
func (c Calibration) Compensate(raw Raw) Environment {
	tFine := c.fineTemperature(raw.Temperature)

	return Environment{
		TemperatureC: tFine / 5120.0,
		PressureHPa:  c.pressure(raw.Pressure, tFine),
		HumidityPct:  c.humidity(raw.Humidity, tFine),
	}
}

func (c Calibration) fineTemperature(adcT int32) float64 {
	adc := float64(adcT)
	t1 := float64(c.T1)
	v1 := float64((adc/16384.0 - t1/1024.0) * float64(c.T2))
	d := adc/131072.0 - t1/8192.0
	v2 := float64(float64(d*d) * float64(c.T3))
	return v1 + v2
}

// pressure returns hPa, or 0 when the calibration would divide by zero.
func (c Calibration) pressure(adcP int32, tFine float64) float64 {
	var1 := tFine/2.0 - 64000.0
	var2 := float64(var1*var1) * float64(c.P6) / 32768.0
	var2 += float64(float64(var1*float64(c.P5)) * 2.0)
	var2 = var2/4.0 + float64(float64(c.P4)*65536.0)
	var1 = (float64(float64(c.P3)*var1)*var1/524288.0 + float64(float64(c.P2)*var1)) / 524288.0
	var1 = float64((1.0 + var1/32768.0) * float64(c.P1))
	if var1 == 0 {
		return 0
	}

	p := 1048576.0 - float64(adcP)
	p = float64((p-var2/4096.0)*6250.0) / var1
	var1 = float64(float64(c.P9)*p) * p / 2147483648.0
	var2 = float64(p*float64(c.P8)) / 32768.0
	p += (var1 + var2 + float64(c.P7)) / 16.0
	return p / 100
}

// humidity returns relative humidity clamped to [0, 100].
func (c Calibration) humidity(adcH int32, tFine float64) float64 {
	h := tFine - 76800.0
	offset := float64(float64(c.H4)*64.0) + float64(float64(c.H5)/16384.0*h)
	inner := 1.0 + float64(float64(c.H3)/67108864.0*h)
	outer := 1.0 + float64(float64(float64(c.H6)/67108864.0*h)*inner)
	h = float64((float64(adcH) - offset) * float64(float64(c.H2)/65536.0*outer))
	h = float64(h * (1.0 - float64(float64(c.H1)*h)/524288.0))

	switch {
	case h > 100:
		return 100
	case h < 0:
		return 0
	}
	return h
}
