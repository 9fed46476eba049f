package mesh

import "strconv"

type HardwareModel uint32

var hardwareModelNames = map[HardwareModel]string{
	0:   "UNSET",
	1:   "TLORA_V2",
	2:   "TLORA_V1",
	3:   "TLORA_V2_1_1P6",
	4:   "TBEAM",
	5:   "HELTEC_V2_0",
	6:   "TBEAM_V0P7",
	7:   "T_ECHO",
	8:   "TLORA_V1_1P3",
	9:   "RAK4631",
	10:  "HELTEC_V2_1",
	11:  "HELTEC_V1",
	12:  "LILYGO_TBEAM_S3_CORE",
	13:  "RAK11200",
	14:  "NANO_G1",
	15:  "TLORA_V2_1_1P8",
	16:  "TLORA_T3_S3",
	17:  "NANO_G1_EXPLORER",
	18:  "NANO_G2_ULTRA",
	19:  "LORA_TYPE",
	20:  "WIPHONE",
	21:  "WIO_WM1110",
	22:  "RAK2560",
	23:  "HELTEC_HRU_3601",
	25:  "STATION_G1",
	26:  "RAK11310",
	27:  "SENSELORA_RP2040",
	28:  "SENSELORA_S3",
	29:  "CANARYONE",
	30:  "RP2040_LORA",
	31:  "STATION_G2",
	32:  "LORA_RELAY_V1",
	33:  "NRF52840DK",
	34:  "PPR",
	35:  "GENIEBLOCKS",
	36:  "NRF52_UNKNOWN",
	37:  "PORTDUINO",
	38:  "ANDROID_SIM",
	39:  "DIY_V1",
	40:  "NRF52840_PCA10059",
	41:  "DR_DEV",
	42:  "M5STACK",
	43:  "HELTEC_V3",
	44:  "HELTEC_WSL_V3",
	45:  "BETAFPV_2400_TX",
	46:  "BETAFPV_900_NANO_TX",
	47:  "RPI_PICO",
	48:  "HELTEC_WIRELESS_TRACKER",
	49:  "HELTEC_WIRELESS_PAPER",
	50:  "T_DECK",
	51:  "T_WATCH_S3",
	255: "PRIVATE_HW",
}

// String returns the firmware's enum name. Models newer than this table keep their number.
func (m HardwareModel) String() string {
	if name, ok := hardwareModelNames[m]; ok {
		return name
	}

	return strconv.FormatUint(uint64(m), 10)
}
