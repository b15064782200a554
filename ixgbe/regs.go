package ixgbe

// Register offsets and bitmasks for the 82599 (ixgbe) register set, as
// specified by the device datasheet section 8. Per-queue families are
// expressed as functions of the queue index; only queues 0-63 are
// addressed here since this driver never configures more.

const (
	regCTRL     = 0x00000
	regCTRLExt  = 0x00018
	regEIMC     = 0x00888
	regEEC      = 0x10010
	regRDRXCTL  = 0x02F00
	regAUTOC    = 0x042A0
	regLINKS    = 0x042A4
	regFCTRL    = 0x05080
	regHLREG0   = 0x04240
	regRXCTRL   = 0x03000
	regDMATXCTL = 0x04A80
	regRTTDCS   = 0x04900
	regDTXMXSZRQ = 0x04B00

	regGPRC  = 0x04074
	regGPTC  = 0x04080
	regGORCL = 0x04088
	regGORCH = 0x0408C
	regGOTCL = 0x04090
	regGOTCH = 0x04094
)

const (
	ctrlRSTMask = 0x04000008 // CTRL.LRST | CTRL.RST

	ctrlExtNSDis = 0x00010000

	eecARD = 0x00000200

	rdrxctlDMAIDONE = 0x00000008
	rdrxctlCRCStrip = 0x00000002

	autocLMSMask        = 0x00E00000
	autocLMS10GSerial   = 0x00600000
	autoc10GPMAPMDMask  = 0x00000180
	autoc10GXAUI        = 0x00000000
	autocANRestart      = 0x00001000

	linksUp           = 0x40000000
	linksSpeedMask    = 0x30000000
	linksSpeed100     = 0x10000000
	linksSpeed1G      = 0x20000000
	linksSpeed10G     = 0x30000000

	fctrlBAM = 0x00000400
	fctrlMPE = 0x00000100
	fctrlUPE = 0x00000200

	hlreg0TxCRCEn    = 0x00000001
	hlreg0RxCRCStrip = 0x00000002
	hlreg0TxPadEn    = 0x00000400

	rxctrlRXEN = 0x00000001

	dmatxctlTE = 0x00000001

	rttdcsARBDIS = 0x00000040

	rxpbsize128KB = 0x00020000
	txpbsize40KB  = 0x0000A000
)

func regRDBAL(i int) uint32  { return 0x01000 + uint32(i)*0x40 }
func regRDBAH(i int) uint32  { return 0x01004 + uint32(i)*0x40 }
func regRDLEN(i int) uint32  { return 0x01008 + uint32(i)*0x40 }
func regRDH(i int) uint32    { return 0x01010 + uint32(i)*0x40 }
func regRDT(i int) uint32    { return 0x01018 + uint32(i)*0x40 }
func regRXDCTL(i int) uint32 { return 0x01028 + uint32(i)*0x40 }
func regSRRCTL(i int) uint32 { return 0x01014 + uint32(i)*0x40 }
func regRXPBSIZE(i int) uint32 { return 0x03C00 + uint32(i)*4 }

// regDCARXCTRL returns the per-queue DCA_RXCTRL address. The datasheet
// splits this register family at queue 16: queues 0-15 sit at
// 0x02200 + 4*i, but queues 16-63 are relocated to 0x0100C + 0x40*i,
// interleaved with the RDBAL/RDBAH/... family rather than following the
// low-queue block's stride.
func regDCARXCTRL(i int) uint32 {
	if i <= 15 {
		return 0x02200 + uint32(i)*4
	}
	return 0x0100C + uint32(i)*0x40
}

const (
	rxdctlEnable = 0x02000000

	srrctlDesctypeMask       = 0x0E000000
	srrctlDesctypeAdvOneBuf  = 0x02000000
	srrctlDropEn             = 0x10000000
)

func regTDBAL(i int) uint32  { return 0x06000 + uint32(i)*0x40 }
func regTDBAH(i int) uint32  { return 0x06004 + uint32(i)*0x40 }
func regTDLEN(i int) uint32  { return 0x06008 + uint32(i)*0x40 }
func regTDH(i int) uint32    { return 0x06010 + uint32(i)*0x40 }
func regTDT(i int) uint32    { return 0x06018 + uint32(i)*0x40 }
func regTXDCTL(i int) uint32 { return 0x06028 + uint32(i)*0x40 }
func regTXPBSIZE(i int) uint32 { return 0x0CC00 + uint32(i)*4 }

const (
	txdctlEnable = 0x02000000

	// writeback thresholds recommended by the datasheet for non-DCB
	// operation: low 6 bits of WTHRESH cleared, PTHRESH set to 32.
	txdctlPTHRESH = 32
	txdctlWTHRESHMask = 0x3F
)

// advanced TX data descriptor cmd_type_len / olinfo_status fields.
const (
	advTxdDCmdEOP  = 0x01000000
	advTxdDCmdRS   = 0x08000000
	advTxdDCmdIFCS = 0x02000000
	advTxdDCmdDEXT = 0x20000000
	advTxdDTypData = 0x00300000

	advTxdPaylenShift = 14
	advTxdStatDD      = 0x00000001
)

// advanced RX descriptor writeback status_error bits.
const (
	rxdadvStatDD  = 0x01
	rxdadvStatEOP = 0x02
)
