package emulator

const lowWindowSize = 20

// lowWindow mantiene los últimos cierres ajustados en una FIFO acotada; su
// mínimo es el swing low que alimenta al stop-loss. No es segura para uso
// concurrente: cada símbolo tiene la suya y solo la toca su propia goroutine.
type lowWindow struct {
	lows []float64
}

// Push añade un cierre descartando el más antiguo si la ventana está llena.
func (w *lowWindow) Push(low float64) {
	if len(w.lows) == lowWindowSize {
		w.lows = append(w.lows[:0], w.lows[1:]...)
	}
	w.lows = append(w.lows, low)
}

// Min devuelve el mínimo de la ventana y false si aún no hay datos.
func (w *lowWindow) Min() (float64, bool) {
	if len(w.lows) == 0 {
		return 0, false
	}
	min := w.lows[0]
	for _, v := range w.lows[1:] {
		if v < min {
			min = v
		}
	}
	return min, true
}
