package waktusolat

import (
	"sort"
	"strings"
)

// Zone describes one JAKIM prayer-time zone
type Zone struct {
	Code        string `json:"code"`
	State       string `json:"state"`
	Description string `json:"description"`
}

// zones is the built-in table of JAKIM zone codes
var zones = map[string]Zone{
	"JHR01": {Code: "JHR01", State: "Johor", Description: "Pulau Aur dan Pulau Pemanggil"},
	"JHR02": {Code: "JHR02", State: "Johor", Description: "Johor Bahru, Kota Tinggi, Mersing, Kulai"},
	"JHR03": {Code: "JHR03", State: "Johor", Description: "Kluang, Pontian"},
	"JHR04": {Code: "JHR04", State: "Johor", Description: "Batu Pahat, Muar, Segamat, Gemas Johor, Tangkak"},
	"KDH01": {Code: "KDH01", State: "Kedah", Description: "Kota Setar, Kubang Pasu, Pokok Sena"},
	"KDH02": {Code: "KDH02", State: "Kedah", Description: "Kuala Muda, Yan, Pendang"},
	"KDH03": {Code: "KDH03", State: "Kedah", Description: "Padang Terap, Sik"},
	"KDH04": {Code: "KDH04", State: "Kedah", Description: "Baling"},
	"KDH05": {Code: "KDH05", State: "Kedah", Description: "Bandar Baharu, Kulim"},
	"KDH06": {Code: "KDH06", State: "Kedah", Description: "Langkawi"},
	"KDH07": {Code: "KDH07", State: "Kedah", Description: "Puncak Gunung Jerai"},
	"KTN01": {Code: "KTN01", State: "Kelantan", Description: "Bachok, Kota Bharu, Machang, Pasir Mas, Pasir Puteh, Tanah Merah, Tumpat, Kuala Krai, Mukim Chiku"},
	"KTN02": {Code: "KTN02", State: "Kelantan", Description: "Gua Musang, Jeli, Jajahan Kecil Lojing"},
	"MLK01": {Code: "MLK01", State: "Melaka", Description: "Seluruh Negeri Melaka"},
	"NGS01": {Code: "NGS01", State: "Negeri Sembilan", Description: "Tampin, Jempol"},
	"NGS02": {Code: "NGS02", State: "Negeri Sembilan", Description: "Jelebu, Kuala Pilah, Rembau"},
	"NGS03": {Code: "NGS03", State: "Negeri Sembilan", Description: "Port Dickson, Seremban"},
	"PHG01": {Code: "PHG01", State: "Pahang", Description: "Pulau Tioman"},
	"PHG02": {Code: "PHG02", State: "Pahang", Description: "Kuantan, Pekan, Muadzam Shah"},
	"PHG03": {Code: "PHG03", State: "Pahang", Description: "Jerantut, Temerloh, Maran, Bera, Chenor, Jengka"},
	"PHG04": {Code: "PHG04", State: "Pahang", Description: "Bentong, Lipis, Raub"},
	"PHG05": {Code: "PHG05", State: "Pahang", Description: "Genting Sempah, Janda Baik, Bukit Tinggi"},
	"PHG06": {Code: "PHG06", State: "Pahang", Description: "Cameron Highlands, Genting Higlands, Bukit Fraser"},
	"PRK01": {Code: "PRK01", State: "Perak", Description: "Tapah, Slim River, Tanjung Malim"},
	"PRK02": {Code: "PRK02", State: "Perak", Description: "Kuala Kangsar, Sg. Siput, Ipoh, Batu Gajah, Kampar"},
	"PRK03": {Code: "PRK03", State: "Perak", Description: "Lenggong, Pengkalan Hulu, Grik"},
	"PRK04": {Code: "PRK04", State: "Perak", Description: "Temengor, Belum"},
	"PRK05": {Code: "PRK05", State: "Perak", Description: "Kg Gajah, Teluk Intan, Bagan Datuk, Seri Iskandar, Beruas, Parit, Lumut, Sitiawan, Pulau Pangkor"},
	"PRK06": {Code: "PRK06", State: "Perak", Description: "Selama, Taiping, Bagan Serai, Parit Buntar"},
	"PRK07": {Code: "PRK07", State: "Perak", Description: "Bukit Larut"},
	"PLS01": {Code: "PLS01", State: "Perlis", Description: "Seluruh Negeri Perlis"},
	"PNG01": {Code: "PNG01", State: "Pulau Pinang", Description: "Seluruh Negeri Pulau Pinang"},
	"SBH01": {Code: "SBH01", State: "Sabah", Description: "Bahagian Sandakan (Timur)"},
	"SBH02": {Code: "SBH02", State: "Sabah", Description: "Beluran, Telupid, Pinangah, Terusan, Kuamut, Bahagian Sandakan (Barat)"},
	"SBH03": {Code: "SBH03", State: "Sabah", Description: "Lahad Datu, Silabukan, Kunak, Sahabat, Semporna, Tungku, Bahagian Tawau (Timur)"},
	"SBH04": {Code: "SBH04", State: "Sabah", Description: "Bandar Tawau, Balong, Merotai, Kalabakan, Bahagian Tawau (Barat)"},
	"SBH05": {Code: "SBH05", State: "Sabah", Description: "Kudat, Kota Marudu, Pitas, Pulau Banggi, Bahagian Kudat"},
	"SBH06": {Code: "SBH06", State: "Sabah", Description: "Gunung Kinabalu"},
	"SBH07": {Code: "SBH07", State: "Sabah", Description: "Kota Kinabalu, Ranau, Kota Belud, Tuaran, Penampang, Papar, Putatan, Bahagian Pantai Barat"},
	"SBH08": {Code: "SBH08", State: "Sabah", Description: "Pensiangan, Keningau, Tambunan, Nabawan, Bahagian Pendalaman (Atas)"},
	"SBH09": {Code: "SBH09", State: "Sabah", Description: "Beaufort, Kuala Penyu, Sipitang, Tenom, Long Pasia, Membakut, Weston, Bahagian Pendalaman (Bawah)"},
	"SWK01": {Code: "SWK01", State: "Sarawak", Description: "Limbang, Lawas, Sundar, Trusan"},
	"SWK02": {Code: "SWK02", State: "Sarawak", Description: "Miri, Niah, Bekenu, Sibuti, Marudi"},
	"SWK03": {Code: "SWK03", State: "Sarawak", Description: "Pandan, Belaga, Suai, Tatau, Sebauh, Bintulu"},
	"SWK04": {Code: "SWK04", State: "Sarawak", Description: "Sibu, Mukah, Dalat, Song, Igan, Oya, Balingian, Kanowit, Kapit"},
	"SWK05": {Code: "SWK05", State: "Sarawak", Description: "Sarikei, Matu, Julau, Rajang, Daro, Bintangor, Belawai"},
	"SWK06": {Code: "SWK06", State: "Sarawak", Description: "Lubok Antu, Sri Aman, Roban, Debak, Kabong, Lingga, Engkelili, Betong, Spaoh, Pusa, Saratok"},
	"SWK07": {Code: "SWK07", State: "Sarawak", Description: "Serian, Simunjan, Samarahan, Sebuyau, Meludam"},
	"SWK08": {Code: "SWK08", State: "Sarawak", Description: "Kuching, Bau, Lundu, Sematan"},
	"SWK09": {Code: "SWK09", State: "Sarawak", Description: "Zon Khas (Kampung Patarikan)"},
	"SGR01": {Code: "SGR01", State: "Selangor", Description: "Gombak, Petaling, Sepang, Hulu Langat, Hulu Selangor, Shah Alam"},
	"SGR02": {Code: "SGR02", State: "Selangor", Description: "Kuala Selangor, Sabak Bernam"},
	"SGR03": {Code: "SGR03", State: "Selangor", Description: "Klang, Kuala Langat"},
	"TRG01": {Code: "TRG01", State: "Terengganu", Description: "Kuala Terengganu, Marang, Kuala Nerus"},
	"TRG02": {Code: "TRG02", State: "Terengganu", Description: "Besut, Setiu"},
	"TRG03": {Code: "TRG03", State: "Terengganu", Description: "Hulu Terengganu"},
	"TRG04": {Code: "TRG04", State: "Terengganu", Description: "Dungun, Kemaman"},
	"WLY01": {Code: "WLY01", State: "Wilayah Persekutuan", Description: "Kuala Lumpur, Putrajaya"},
	"WLY02": {Code: "WLY02", State: "Wilayah Persekutuan", Description: "Labuan"},
}

// Zones returns the built-in zone table sorted by code
func Zones() []Zone {
	out := make([]Zone, 0, len(zones))
	for _, z := range zones {
		out = append(out, z)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// LookupZone returns the zone for a code, ignoring case
func LookupZone(code string) (Zone, bool) {
	z, ok := zones[strings.ToUpper(strings.TrimSpace(code))]
	return z, ok
}

// ValidateZone normalizes code and rejects codes outside the zone table
func ValidateZone(code string) (string, error) {
	z, ok := LookupZone(code)
	if !ok {
		return "", &ConfigurationError{Field: "zone", Value: code, Reason: "unknown JAKIM zone code"}
	}
	return z.Code, nil
}
