package maxigauge

type (
	// Millibar is a pressure in mbar, the controller's native unit
	Millibar float64

	// Pascal is a pressure in Pa
	Pascal float64

	// Torr is a pressure in Torr
	Torr float64
)

// M2P converts a pressure in mbar to Pascal
func M2P(m Millibar) Pascal {
	return Pascal(m * 100)
}

// M2T converts a pressure in mbar to Torr
func M2T(m Millibar) Torr {
	return Torr(m * 0.75006168)
}

// P2M converts a pressure in Pascal to mbar
func P2M(p Pascal) Millibar {
	return Millibar(p / 100)
}

// T2M converts a pressure in Torr to mbar
func T2M(t Torr) Millibar {
	return Millibar(t / 0.75006168)
}
