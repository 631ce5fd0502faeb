package integrators

// Tsit5 is Tsitouras' 5(4) pair. Dense output uses the method's own
// fourth order continuous extension.
var Tsit5 = &Tableau{
	Name:  "tsit5",
	Order: 5,
	C:     []float64{0, 0.161, 0.327, 0.9, 0.9800255409045097, 1, 1},
	A: [][]float64{
		{},
		{0.161},
		{-0.008480655492356989, 0.335480655492357},
		{2.897153057105493, -6.359448489975075, 4.3622954328695815},
		{5.325864828439257, -11.748883564062828, 7.4955393428898365, -0.09249506636175525},
		{5.86145544294642, -12.92096931784711, 8.159367898576159, -0.071584973281401, -0.028269050394068383},
		{0.09646076681806523, 0.01, 0.4798896504144996, 1.379008574103742, -3.290069515436081, 2.324710524099774},
	},
	B: []float64{0.09646076681806523, 0.01, 0.4798896504144996, 1.379008574103742, -3.290069515436081, 2.324710524099774, 0},
	BErr: []float64{
		-0.00178001105222577714,
		-0.0008164344596567469,
		0.007880878010261995,
		-0.1447110071732629,
		0.5823571654525552,
		-0.45808210592918697,
		0.015151515151515152,
	},
	FSAL:  true,
	Dense: tsit5Dense,
}

// tsit5Coef holds the theta, theta^2, theta^3 and theta^4 coefficients of
// each stage weight b_i(theta). At theta=1 the rows sum to B.
var tsit5Coef = [7][4]float64{
	{1, -2.763706197274826, 2.9132554618219126, -1.0530884977290216},
	{0, 0.13169999999999998, -0.2234, 0.1017},
	{0, 3.9302962368947516, -5.941033872131505, 2.490627285651253},
	{0, -12.411077166933676, 30.33818863028232, -16.548102889244902},
	{0, 37.50931341651104, -88.1789048947664, 47.37952196281928},
	{0, -27.896526289197286, 65.09189467479366, -34.87065786149661},
	{0, 1.5, -4, 2.5},
}

// tsit5Dense gives y(t0+theta*h) = y0 + h*sum b_i(theta)*k_i.
func tsit5Dense(theta float64) (float64, float64, []float64) {
	wk := make([]float64, len(tsit5Coef))
	for i, c := range tsit5Coef {
		wk[i] = theta * (c[0] + theta*(c[1]+theta*(c[2]+theta*c[3])))
	}
	return 1, 0, wk
}
