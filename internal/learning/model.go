package learning

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/AyusGup/Hive-Automation/pkg/logger"
)

// ErrNotTrained is returned by Predict before the first successful Train.
var ErrNotTrained = errors.New("model is not trained")

// Modelは学習済みモデルのインターフェースです。
type Model interface {
	// Trainは与えられた特徴量でモデルを訓練します。
	Train(ctx context.Context, features []Feature) error
	// Predictは回帰変数ベクトルから価格を予測します。
	Predict(x []float64) (float64, error)
	// Versionはモデルのバージョンを返します。
	Version() string
}

// LinearModel is an ordinary least squares regression with intercept.
type LinearModel struct {
	mu        sync.RWMutex
	version   string
	intercept float64
	coef      []float64
}

// NewLinearModel は未学習のLinearModelを生成します。
func NewLinearModel() *LinearModel {
	return &LinearModel{version: "untrained"}
}

// Train fits the model. The regressors are centered and solved as a
// minimum-norm least squares problem, so constant columns are tolerated.
func (m *LinearModel) Train(ctx context.Context, features []Feature) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(features) == 0 {
		return fmt.Errorf("%w: no rows to train on", ErrInsufficientData)
	}
	n := len(features)
	p := len(features[0].Vector())

	xMean := make([]float64, p)
	var yMean float64
	for _, f := range features {
		floats.Add(xMean, f.Vector())
		yMean += f.Price
	}
	floats.Scale(1/float64(n), xMean)
	yMean /= float64(n)

	x := mat.NewDense(n, p, nil)
	y := mat.NewDense(n, 1, nil)
	for i, f := range features {
		row := f.Vector()
		floats.Sub(row, xMean)
		x.SetRow(i, row)
		y.Set(i, 0, f.Price-yMean)
	}

	var svd mat.SVD
	if ok := svd.Factorize(x, mat.SVDThin); !ok {
		return errors.New("failed to factorize feature matrix")
	}
	coef := make([]float64, p)
	rank := svd.Rank(1e-12)
	if rank > 0 {
		var beta mat.Dense
		svd.SolveTo(&beta, y, rank)
		for j := range coef {
			coef[j] = beta.At(j, 0)
		}
	}

	m.mu.Lock()
	m.coef = coef
	m.intercept = yMean - floats.Dot(xMean, coef)
	m.version = fmt.Sprintf("model-%s", uuid.New().String())
	m.mu.Unlock()

	logger.Debugf("Trained %s on %d rows (rank %d)", m.Version(), n, rank)
	return nil
}

// Predict returns intercept + coef·x.
func (m *LinearModel) Predict(x []float64) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.coef == nil {
		return 0, ErrNotTrained
	}
	if len(x) != len(m.coef) {
		return 0, fmt.Errorf("expected %d regressors, got %d", len(m.coef), len(x))
	}
	return m.intercept + floats.Dot(m.coef, x), nil
}

// Coefficients returns the intercept and a copy of the slope coefficients.
func (m *LinearModel) Coefficients() (float64, []float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.intercept, append([]float64(nil), m.coef...)
}

// Version はモデルのバージョンを返します。
func (m *LinearModel) Version() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

// Score returns the coefficient of determination on features.
// It is NaN for fewer than two rows.
func Score(model Model, features []Feature) (float64, error) {
	if len(features) < 2 {
		return math.NaN(), nil
	}
	est := make([]float64, len(features))
	actual := make([]float64, len(features))
	for i, f := range features {
		v, err := model.Predict(f.Vector())
		if err != nil {
			return 0, err
		}
		est[i] = v
		actual[i] = f.Price
	}
	return stat.RSquaredFrom(est, actual, nil), nil
}

// SplitTrainTest shuffles features with seed and holds out ceil(testSize*n) rows.
func SplitTrainTest(features []Feature, testSize float64, seed int64) (train, test []Feature, err error) {
	n := len(features)
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, fmt.Errorf("test size must be in (0, 1), got %f", testSize)
	}
	nTest := int(math.Ceil(testSize * float64(n)))
	if n-nTest < 1 {
		return nil, nil, fmt.Errorf("%w: %d rows cannot be split with test size %.2f", ErrInsufficientData, n, testSize)
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	test = make([]Feature, 0, nTest)
	train = make([]Feature, 0, n-nTest)
	for i, idx := range perm {
		if i < nTest {
			test = append(test, features[idx])
		} else {
			train = append(train, features[idx])
		}
	}
	return train, test, nil
}

// TrainModel splits features, fits a LinearModel on the train part and
// scores it on the held-out part.
func TrainModel(ctx context.Context, features []Feature, testSize float64, seed int64) (*LinearModel, float64, error) {
	train, test, err := SplitTrainTest(features, testSize, seed)
	if err != nil {
		return nil, 0, err
	}
	model := NewLinearModel()
	if err := model.Train(ctx, train); err != nil {
		return nil, 0, err
	}
	r2, err := Score(model, test)
	if err != nil {
		return nil, 0, err
	}
	logger.Infof("Model R^2 Score: %.2f", r2)
	return model, r2, nil
}

// PredictNextPrices forecasts steps prices autoregressively from last. After
// each step the regressors are rebuilt from the prediction: the change is taken
// against the previous change regressor, the average blends four parts old
// average with one part prediction, and the std is the population std of the
// last five predictions once five exist.
func PredictNextPrices(model Model, last Feature, steps int) ([]float64, error) {
	x := last.Vector()
	predictions := make([]float64, 0, steps)
	for i := 0; i < steps; i++ {
		p, err := model.Predict(x)
		if err != nil {
			return predictions, err
		}
		predictions = append(predictions, p)

		change := 0.0
		if x[0] != 0 {
			change = (p - x[0]) / x[0]
		}
		avg := (x[1]*4 + p) / 5
		std := 0.0
		if len(predictions) >= 5 {
			std = stat.PopStdDev(predictions[len(predictions)-5:], nil)
		}
		x = []float64{change, avg, std}
	}
	return predictions, nil
}
